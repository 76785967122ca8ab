package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"royalties/internal/app"
	"royalties/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the background job queue",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsStatusCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := make([]jobs.Status, 0, len(statuses))
			for _, raw := range statuses {
				status, ok := jobs.ParseStatus(strings.TrimSpace(raw))
				if !ok {
					return fmt.Errorf("unknown job status %q", raw)
				}
				filter = append(filter, status)
			}
			return ctx.withApp(func(a *app.App) error {
				list, err := a.Jobs.List(cmd.Context(), filter...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, job := range list {
					rows = append(rows, []string{
						job.ID,
						job.StatementID,
						colorStatus(out, string(job.Status), jobTone(job.Status)),
						fmt.Sprintf("%.0f%%", job.Progress),
						fmt.Sprintf("%d", job.Attempts),
						job.CreatedAt.Local().Format("2006-01-02 15:04"),
						job.Error,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Statement", "Status", "Progress", "Attempts", "Created", "Error"},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only these statuses (queued, active, completed, failed)")
	return cmd
}

func jobTone(status jobs.Status) string {
	switch status {
	case jobs.StatusCompleted:
		return "ok"
	case jobs.StatusFailed:
		return "bad"
	case jobs.StatusActive:
		return "warn"
	}
	return ""
}

func newJobsStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				job, err := a.Jobs.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job:       %s\n", job.ID)
				fmt.Fprintf(out, "Statement: %s\n", job.StatementID)
				fmt.Fprintf(out, "Status:    %s (%.0f%%)\n", job.Status, job.Progress)
				fmt.Fprintf(out, "Attempts:  %d\n", job.Attempts)
				if job.Error != "" {
					fmt.Fprintf(out, "Error:     %s\n", job.Error)
				}
				return nil
			})
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Remove a queued job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				if err := a.Jobs.Cancel(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", args[0])
				return nil
			})
		},
	}
}
