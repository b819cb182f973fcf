package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and run background jobs",
}

var jobsRunOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run every job that is due now, then exit",
	Long: `run-once claims due jobs one at a time until none is left. Repository
removals only become due after REMOVAL_DELAY has passed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := core.Pool.Drain(cmd.Context())
		if err != nil {
			return fmt.Errorf("run jobs: %w", err)
		}
		core.Hooks.Wait()

		return printResult(map[string]int{"ran": count}, fmt.Sprintf("Ran %d job(s)", count))
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := core.Jobs.FindByID(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}

		text := fmt.Sprintf("%s  %s  %s  attempts=%d/%d", job.ID, job.Type, job.Status, job.Attempts, job.MaxAttempts)
		if job.LastError != "" {
			text += "\nlast error: " + job.LastError
		}
		return printResult(job, text)
	},
}

func init() {
	jobsCmd.AddCommand(jobsRunOnceCmd)
	jobsCmd.AddCommand(jobsGetCmd)
}
