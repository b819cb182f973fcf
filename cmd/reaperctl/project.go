package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"project-reaper/internal/model"
)

var (
	projectOwner  string
	projectForkOf int64
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Register and inspect projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <namespace/name>",
	Short: "Register a project owned by a user",
	Long: `add registers a project row for a repository that lives under
REPOSITORY_ROOT at <namespace/name>.git. The owner gets owner access.

Example:
  reaperctl project add group/app --owner alice
  reaperctl project add alice/app --owner alice --fork-of 42`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		owner, err := core.Users.FindByUsername(ctx, projectOwner)
		if errors.Is(err, model.ErrUserNotFound) {
			return fmt.Errorf("user %q not found", projectOwner)
		}
		if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}

		project, err := core.Creator.Create(ctx, args[0], owner, projectForkOf)
		if err != nil {
			return fmt.Errorf("create project: %w", err)
		}

		return printResult(project, fmt.Sprintf("Created project %s", project))
	},
}

var projectGetCmd = &cobra.Command{
	Use:   "get <project-id>",
	Short: "Show a project and its deletion state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid project id %q", args[0])
		}

		project, err := core.Projects.FindByID(cmd.Context(), projectID)
		if err != nil {
			return fmt.Errorf("get project: %w", err)
		}

		text := fmt.Sprintf("%s  state=%s", project, project.State)
		if project.DeleteError != "" {
			text += "\ndelete error: " + project.DeleteError
		}
		return printResult(project, text)
	},
}

func init() {
	projectAddCmd.Flags().StringVar(&projectOwner, "owner", "", "username of the owner (required)")
	projectAddCmd.Flags().Int64Var(&projectForkOf, "fork-of", 0, "id of the project this one is forked from")
	_ = projectAddCmd.MarkFlagRequired("owner")

	projectCmd.AddCommand(projectAddCmd)
	projectCmd.AddCommand(projectGetCmd)
}
