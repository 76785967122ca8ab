package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"royalties/internal/app"
	"royalties/internal/distribution"
)

func newDistributionCommand(ctx *commandContext) *cobra.Command {
	distCmd := &cobra.Command{
		Use:     "distribution",
		Aliases: []string{"dist"},
		Short:   "Calculate and inspect royalty distributions",
	}
	distCmd.AddCommand(newDistributionCalculateCommand(ctx))
	distCmd.AddCommand(newDistributionSummaryCommand(ctx))
	distCmd.AddCommand(newDistributionListCommand(ctx))
	distCmd.AddCommand(newDistributionMarkPaidCommand(ctx))
	return distCmd
}

func newDistributionCalculateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "calculate <statement-id>",
		Short: "Recalculate distributions from the statement's current matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				summary, err := a.Processor.Distribute(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printSummary(cmd, ctx, summary)
			})
		},
	}
}

func newDistributionSummaryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <statement-id>",
		Short: "Show the stored distribution summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(func(a *app.App) error {
				summary, err := a.Distribution.Summary(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printSummary(cmd, ctx, summary)
			})
		},
	}
}

func printSummary(cmd *cobra.Command, ctx *commandContext, summary *distribution.Summary) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, summary)
	}
	renderSummary(cmd.OutOrStdout(), summary)
	return nil
}

func renderSummary(out io.Writer, s *distribution.Summary) {
	fmt.Fprintf(out, "Statement %s (%s)\n", s.StatementID, s.Currency)
	fmt.Fprintf(out, "Gross %s, distributed %s, undistributed %s\n",
		s.TotalGross.StringFixed(2), s.TotalDistributed.StringFixed(2), s.TotalUndistributed.StringFixed(2))
	fmt.Fprintf(out, "Match rate %.1f%% (%d of %d rows)\n", s.MatchRate*100, s.MatchedRows, s.TotalRows)

	if len(s.ByRightType) > 0 {
		keys := make([]string, 0, len(s.ByRightType))
		for k := range s.ByRightType {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		rows := make([][]string, 0, len(keys))
		for _, k := range keys {
			total := s.ByRightType[k]
			rows = append(rows, []string{k, total.Amount.StringFixed(2), total.Percentage.StringFixed(2) + "%"})
		}
		fmt.Fprintln(out, renderTable([]string{"Right type", "Amount", "Share"}, rows))
	}
	renderParties(out, "Writer", s.ByWriter)
	renderParties(out, "Publisher", s.ByPublisher)
	for _, adj := range s.Adjustments {
		fmt.Fprintf(out, "rounding: %s/%s %s to %s\n", adj.WorkID, adj.RightType, adj.Amount.StringFixed(2), adj.PartyID)
	}
	for _, w := range s.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
}

func renderParties(out io.Writer, label string, parties []distribution.PartyTotal) {
	if len(parties) == 0 {
		return
	}
	rows := make([][]string, 0, len(parties))
	for _, p := range parties {
		rows = append(rows, []string{p.ID, p.Name, p.Amount.StringFixed(2), p.Percentage.StringFixed(2) + "%"})
	}
	fmt.Fprintln(out, renderTable([]string{label, "Name", "Amount", "Share"}, rows))
}

func newDistributionListCommand(ctx *commandContext) *cobra.Command {
	var filter distribution.Filter
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored distributions",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch distribution.PayoutStatus(status) {
			case "", distribution.PayoutPending, distribution.PayoutPaid:
				filter.Status = distribution.PayoutStatus(status)
			default:
				return fmt.Errorf("unknown payout status %q", status)
			}
			return ctx.withApp(func(a *app.App) error {
				list, err := a.Distribution.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, list)
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No distributions")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, d := range list {
					rows = append(rows, []string{
						d.ID, d.WorkTitle, string(d.PartyType) + " " + d.PartyName, d.RightType,
						d.Gross.StringFixed(2), d.SharePercent.String() + "%", d.Net.StringFixed(2),
						string(d.Status), strconv.Itoa(len(d.RowNumbers)),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Work", "Payee", "Right", "Gross", "Share", "Net", "Status", "Rows"},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filter.StatementID, "statement", "", "Only this statement")
	cmd.Flags().StringVarP(&filter.TenantID, "tenant", "t", "", "Only this tenant")
	cmd.Flags().StringVar(&filter.WorkID, "work", "", "Only this work")
	cmd.Flags().StringVar(&filter.WriterID, "writer", "", "Only this writer")
	cmd.Flags().StringVar(&filter.PublisherID, "publisher", "", "Only this publisher")
	cmd.Flags().StringVar(&status, "status", "", "pending or paid")
	cmd.Flags().IntVar(&filter.Limit, "limit", 100, "Maximum rows (0 for all)")
	return cmd
}

func newDistributionMarkPaidCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mark-paid <distribution-id>...",
		Short: "Mark pending distributions as paid",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]string, 0, len(args))
			for _, arg := range args {
				for _, id := range strings.Split(arg, ",") {
					if id = strings.TrimSpace(id); id != "" {
						ids = append(ids, id)
					}
				}
			}
			return ctx.withApp(func(a *app.App) error {
				n, err := a.Distribution.MarkPaid(cmd.Context(), ids)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int{"requested": len(ids), "paid": n})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %d distributions marked paid\n", n, len(ids))
				return nil
			})
		},
	}
}
