package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"royalties/internal/app"
	"royalties/internal/config"
	"royalties/internal/distribution"
	"royalties/internal/processor"
	"royalties/internal/review"
	"royalties/internal/services"
	"royalties/internal/statement"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var tenant, source string
	var process, queue bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Store a statement file (CSV or XLSX)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(tenant) == "" {
				return errors.New("--tenant is required")
			}
			if process && queue {
				return errors.New("--process and --queue are mutually exclusive")
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read statement file: %w", err)
			}
			return ctx.withApp(func(a *app.App) error {
				stmt, err := a.Processor.UploadStatement(cmd.Context(), processor.Upload{
					TenantID: tenant,
					Source:   source,
					FileName: filepath.Base(path),
					Data:     data,
				})
				if err != nil {
					return err
				}
				switch {
				case process:
					return runProcess(cmd, ctx, a, stmt.ID)
				case queue:
					return submitJob(cmd, ctx, a, stmt)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stmt)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Uploaded statement %s (%d rows, %s %s)\n", stmt.ID, stmt.RowCount, stmt.TotalGross.StringFixed(2), stmt.Currency)
				fmt.Fprintf(out, "Process it with: royalty process %s\n", stmt.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant whose catalog the statement is matched against")
	cmd.Flags().StringVar(&source, "source", "", "Statement source (DSP or society name)")
	cmd.Flags().BoolVar(&process, "process", false, "Process the statement immediately")
	cmd.Flags().BoolVar(&queue, "queue", false, "Queue the statement for the daemon")
	return cmd
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var queue bool

	cmd := &cobra.Command{
		Use:   "process <statement-id>",
		Short: "Match, route, and distribute a stored statement",
		Long: "Runs the full pipeline in this process. Reprocessing replaces the rows,\n" +
			"review items, and distributions of any earlier run. Use --queue to hand\n" +
			"the statement to the daemon instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				if queue {
					stmt, err := a.Store.GetStatement(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return submitJob(cmd, ctx, a, stmt)
				}
				return runProcess(cmd, ctx, a, args[0])
			})
		},
	}
	cmd.Flags().BoolVar(&queue, "queue", false, "Queue the statement for the daemon")
	return cmd
}

func runProcess(cmd *cobra.Command, ctx *commandContext, a *app.App, statementID string) error {
	result, err := a.Processor.ProcessStatement(cmd.Context(), statementID, nil)
	if result == nil {
		return err
	}
	if ctx.jsonOutput() {
		if encErr := writeJSON(cmd, result); encErr != nil {
			return encErr
		}
		return err
	}
	renderProcessResult(cmd.OutOrStdout(), result)
	return err
}

func submitJob(cmd *cobra.Command, ctx *commandContext, a *app.App, stmt *statement.Statement) error {
	job, err := a.Jobs.Submit(cmd.Context(), stmt.ID, stmt.TenantID)
	if err != nil {
		return err
	}
	if ctx.jsonOutput() {
		return writeJSON(cmd, job)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued statement %s as job %s\n", stmt.ID, job.ID)
	return nil
}

func renderProcessResult(out io.Writer, result *processor.Result) {
	tone := "ok"
	switch result.Status {
	case statement.StatusReview:
		tone = "warn"
	case statement.StatusFailed:
		tone = "bad"
	}
	fmt.Fprintf(out, "Statement %s: %s\n", result.StatementID, colorStatus(out, string(result.Status), tone))
	fmt.Fprintln(out, renderStats(result.Stats))
	if result.Distribution != nil {
		d := result.Distribution
		fmt.Fprintf(out, "Distributed %s / undistributed %s of %s %s (match rate %.1f%%)\n",
			d.TotalDistributed.StringFixed(2), d.TotalUndistributed.StringFixed(2), d.TotalGross.StringFixed(2),
			d.Currency, d.MatchRate*100)
	}
	for _, msg := range result.Errors {
		fmt.Fprintf(out, "error: %s\n", msg)
	}
	for _, msg := range result.Warnings {
		fmt.Fprintf(out, "warning: %s\n", msg)
	}
}

func renderStats(stats statement.Stats) string {
	rows := [][]string{
		{"Processed", strconv.Itoa(stats.ProcessedRows)},
		{"Exact", strconv.Itoa(stats.ExactMatches)},
		{"Fuzzy", strconv.Itoa(stats.FuzzyMatches)},
		{"No match", strconv.Itoa(stats.NoMatches)},
		{"Needs review", strconv.Itoa(stats.ReviewRequired)},
		{"Avg match ms", strconv.FormatFloat(stats.AverageMatchTimeMs, 'f', 2, 64)},
		{"Errors", strconv.Itoa(stats.Errors)},
		{"Warnings", strconv.Itoa(stats.Warnings)},
	}
	return renderTable([]string{"Rows", "Count"}, rows)
}

type statementStatus struct {
	Statement    *statement.Statement          `json:"statement"`
	MatchCounts  map[statement.MatchStatus]int `json:"match_counts"`
	Review       review.Stats                  `json:"review"`
	Distribution *distribution.Summary         `json:"distribution,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <statement-id>",
		Short: "Show a statement's processing state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				c := cmd.Context()
				stmt, err := a.Store.GetStatement(c, args[0])
				if err != nil {
					return err
				}
				counts, err := a.Store.CountRowsByMatchStatus(c, stmt.ID)
				if err != nil {
					return err
				}
				reviewStats, err := a.Review.Stats(c, stmt.ID)
				if err != nil {
					return err
				}
				status := statementStatus{Statement: stmt, MatchCounts: counts, Review: reviewStats}
				summary, err := a.Distribution.Summary(c, stmt.ID)
				switch {
				case err == nil:
					status.Distribution = summary
				case !errors.Is(err, services.ErrNotFound):
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, status)
				}
				renderStatementStatus(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
}

func renderStatementStatus(out io.Writer, s statementStatus) {
	stmt := s.Statement
	fmt.Fprintf(out, "Statement: %s\n", stmt.ID)
	fmt.Fprintf(out, "Tenant:    %s\n", stmt.TenantID)
	fmt.Fprintf(out, "File:      %s (%s)\n", stmt.FileName, stmt.Format)
	fmt.Fprintf(out, "Status:    %s\n", stmt.Status)
	if stmt.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", stmt.ErrorMessage)
	}
	fmt.Fprintf(out, "Gross:     %s %s over %d rows\n", stmt.TotalGross.StringFixed(2), stmt.Currency, stmt.RowCount)
	fmt.Fprintln(out, renderStats(stmt.Stats))
	fmt.Fprintf(out, "Review: %d pending, %d approved, %d rejected\n", s.Review.Pending, s.Review.Approved, s.Review.Rejected)
	if d := s.Distribution; d != nil {
		fmt.Fprintf(out, "Distributed %s / undistributed %s (match rate %.1f%%)\n",
			d.TotalDistributed.StringFixed(2), d.TotalUndistributed.StringFixed(2), d.MatchRate*100)
	}
}

func newStatementsCommand(ctx *commandContext) *cobra.Command {
	var tenant string
	var statuses []string
	var limit int

	cmd := &cobra.Command{
		Use:   "statements",
		Short: "List statements",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := make([]statement.Status, 0, len(statuses))
			for _, raw := range statuses {
				status, ok := statement.ParseStatus(strings.TrimSpace(raw))
				if !ok {
					return fmt.Errorf("unknown statement status %q", raw)
				}
				filter = append(filter, status)
			}
			return ctx.withApp(func(a *app.App) error {
				list, err := a.Store.ListStatements(cmd.Context(), tenant, filter, limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No statements")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, s := range list {
					rows = append(rows, []string{
						s.ID, s.TenantID, s.FileName, string(s.Status),
						strconv.Itoa(s.RowCount), s.TotalGross.StringFixed(2) + " " + s.Currency,
						s.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Tenant", "File", "Status", "Rows", "Gross", "Uploaded"},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Only this tenant")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only these statuses")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum statements to show (0 for all)")
	return cmd
}
