package main

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"royalties/internal/app"
	"royalties/internal/review"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Work the manual review queue",
	}
	reviewCmd.AddCommand(newReviewListCommand(ctx))
	reviewCmd.AddCommand(newReviewResolveCommand(ctx))
	reviewCmd.AddCommand(newReviewBulkCommand(ctx))
	reviewCmd.AddCommand(newReviewAssignCommand(ctx))
	reviewCmd.AddCommand(newReviewStatsCommand(ctx))
	return reviewCmd
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	var filter review.Filter
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List review items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				parsed, ok := review.ParseStatus(status)
				if !ok {
					return fmt.Errorf("unknown review status %q", status)
				}
				filter.Status = parsed
			}
			return ctx.withApp(func(a *app.App) error {
				items, err := a.Review.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No review items")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.ID,
						item.StatementID,
						strconv.Itoa(item.RowNumber),
						string(item.MatchStatus),
						strconv.FormatFloat(item.Confidence, 'f', 2, 64),
						item.SuggestedWorkID,
						strconv.Itoa(len(item.Candidates)),
						string(item.Status),
						item.Assignee,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Statement", "Row", "Match", "Conf", "Suggested", "Cands", "Status", "Assignee"},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter.StatementID, "statement", "", "Only items from this statement")
	cmd.Flags().StringVarP(&filter.TenantID, "tenant", "t", "", "Only items for this tenant")
	cmd.Flags().StringVar(&status, "status", string(review.StatusPending), "Item status (pending, approved, rejected)")
	cmd.Flags().StringVar(&filter.Assignee, "assignee", "", "Only items assigned to this user")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "Items to skip")
	return cmd
}

func newReviewResolveCommand(ctx *commandContext) *cobra.Command {
	var by, workID, note string
	var confidence float64

	cmd := &cobra.Command{
		Use:   "resolve <item-id> <approve|reject|rematch|skip>",
		Short: "Resolve one review item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, ok := review.ParseAction(strings.ToLower(args[1]))
			if !ok {
				return fmt.Errorf("unknown action %q", args[1])
			}
			opts := review.ResolveOptions{WorkID: workID, Note: note}
			if cmd.Flags().Changed("confidence") {
				opts.Confidence = &confidence
			}
			return ctx.withApp(func(a *app.App) error {
				changed, err := a.Review.Resolve(cmd.Context(), args[0], action, reviewer(by), opts)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"id": args[0], "action": action, "changed": changed})
				}
				out := cmd.OutOrStdout()
				if changed {
					fmt.Fprintf(out, "Item %s: %s\n", args[0], action)
				} else {
					fmt.Fprintf(out, "Item %s unchanged (0 transitioned)\n", args[0])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "Reviewer name (defaults to the current user)")
	cmd.Flags().StringVar(&workID, "work", "", "Work id (required for rematch)")
	cmd.Flags().Float64Var(&confidence, "confidence", 1, "Confidence written to the row")
	cmd.Flags().StringVar(&note, "note", "", "Resolution note")
	return cmd
}

func newReviewBulkCommand(ctx *commandContext) *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "bulk <approve|reject|skip> <item-id>...",
		Short: "Apply one action to many review items",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, ok := review.ParseAction(strings.ToLower(args[0]))
			if !ok {
				return fmt.Errorf("unknown action %q", args[0])
			}
			if action == review.ActionRematch {
				return errors.New("rematch needs a work id per item; use review resolve")
			}
			return ctx.withApp(func(a *app.App) error {
				changed, err := a.Review.BulkResolve(cmd.Context(), args[1:], action, reviewer(by))
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"action": action, "requested": len(args) - 1, "changed": changed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d items resolved (%s)\n", changed, len(args)-1, action)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "Reviewer name (defaults to the current user)")
	return cmd
}

func newReviewAssignCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <item-id> <user>",
		Short: "Assign a review item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				if err := a.Review.Assign(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s assigned to %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func newReviewStatsCommand(ctx *commandContext) *cobra.Command {
	var statementID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count review items by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				stats, err := a.Review.Stats(cmd.Context(), statementID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				rows := [][]string{
					{"Pending", strconv.Itoa(stats.Pending)},
					{"Approved", strconv.Itoa(stats.Approved)},
					{"Rejected", strconv.Itoa(stats.Rejected)},
					{"Total", strconv.Itoa(stats.Total)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Status", "Items"}, rows))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&statementID, "statement", "", "Only items from this statement")
	return cmd
}

func reviewer(flag string) string {
	if name := strings.TrimSpace(flag); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}
