// Package main provides reaperctl, the operator CLI for project removal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"project-reaper/internal/app"
	"project-reaper/internal/config"
	"project-reaper/internal/logger"
)

var (
	// jsonOutput is set by the --json flag.
	jsonOutput bool

	// core is initialized in PersistentPreRunE and closed afterwards.
	core *app.Core
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if core != nil {
		core.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reaperctl",
	Short: "reaperctl removes projects and runs removal jobs",
	Long: `reaperctl talks to the same database, repository storage and cache as
the project-reaper server and covers the operator tasks the HTTP API does not.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initCore,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(userCmd)
}

func initCore(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logger.New(os.Stderr, cfg.LogLevel))

	c, err := app.NewCore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	core = c
	return nil
}

func printResult(result any, text string) error {
	if !jsonOutput {
		fmt.Println(text)
		return nil
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Println(string(output))
	return nil
}
