package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"project-reaper/internal/model"
)

var (
	destroyActor    string
	destroySkipRepo bool
	destroyAsync    bool
)

var destroyCmd = &cobra.Command{
	Use:   "destroy <project-id>",
	Short: "Destroy a project on behalf of a user",
	Long: `Destroy removes a project, its members and fork links, and moves its
repositories aside for delayed removal. The acting user must be allowed to
remove the project.

Example:
  reaperctl destroy 42 --actor root
  reaperctl destroy 42 --actor root --async
  reaperctl destroy 42 --actor root --skip-repo`,
	Args: cobra.ExactArgs(1),
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().StringVar(&destroyActor, "actor", "", "username or id of the acting user (required)")
	destroyCmd.Flags().BoolVar(&destroySkipRepo, "skip-repo", false, "leave repositories in place")
	destroyCmd.Flags().BoolVar(&destroyAsync, "async", false, "schedule the removal as a background job")
	_ = destroyCmd.MarkFlagRequired("actor")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	projectID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || projectID <= 0 {
		return fmt.Errorf("invalid project id %q", args[0])
	}

	ctx := cmd.Context()

	user, err := core.Users.FindByUsername(ctx, destroyActor)
	if errors.Is(err, model.ErrUserNotFound) {
		user, err = core.Users.FindByID(ctx, destroyActor)
	}
	if errors.Is(err, model.ErrUserNotFound) {
		return fmt.Errorf("user %q not found", destroyActor)
	}
	if err != nil {
		return fmt.Errorf("load actor: %w", err)
	}
	actor := model.ActorFromUser(user)

	project, err := core.Projects.FindByID(ctx, projectID)
	if errors.Is(err, model.ErrProjectNotFound) {
		return fmt.Errorf("project %d not found", projectID)
	}
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	opts := model.DestroyOptions{SkipRepo: destroySkipRepo}

	if destroyAsync {
		jobID, err := core.Destroy.ScheduleAsync(ctx, &project, actor, opts)
		if err != nil {
			return fmt.Errorf("schedule destroy: %w", err)
		}
		return printResult(model.ScheduledDestroyResponse{
			ProjectID: project.ID,
			JobID:     jobID,
			State:     project.State,
		}, fmt.Sprintf("Scheduled removal of %s as job %s", project, jobID))
	}

	if project.PendingDelete() {
		return fmt.Errorf("project %d: %w", projectID, model.ErrDeletionPending)
	}
	if !core.Destroy.CanDestroy(ctx, actor, project) {
		return fmt.Errorf("%s may not remove project %d", user.Username, projectID)
	}

	removed, err := core.Destroy.Execute(ctx, &project, actor, opts)
	if err != nil {
		return fmt.Errorf("destroy project: %w", err)
	}
	if !removed {
		return fmt.Errorf("project %d was not removed: %s", projectID, project.DeleteError)
	}

	// Hook deliveries run in the background; let them finish before exit.
	core.Hooks.Wait()

	return printResult(map[string]any{
		"project_id": project.ID,
		"status":     "removed",
	}, fmt.Sprintf("Removed project %s", project))
}
