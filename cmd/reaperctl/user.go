package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"project-reaper/internal/model"
)

var userRole string

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user",
	Long: `add creates a user. The password is read from REAPER_PASSWORD so it
never shows up in shell history.

Example:
  REAPER_PASSWORD=s3cret reaperctl user add root --role admin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := strings.TrimSpace(os.Getenv("REAPER_PASSWORD"))
		if password == "" {
			return fmt.Errorf("REAPER_PASSWORD must be set")
		}

		user, err := core.Auth.CreateUser(cmd.Context(), args[0], password, userRole)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		return printResult(user, fmt.Sprintf("Created user %s (%s) with role %s", user.Username, user.ID, user.Role))
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userRole, "role", model.RoleMember, "role: admin or member")
	userCmd.AddCommand(userAddCmd)
}
