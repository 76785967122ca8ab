package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"royalties/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var filter logs.Filter
	var lines int
	var follow, cli bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show daemon or CLI log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := "royalties.log"
			if cli {
				name = "royalty-cli.log"
			}
			path := filepath.Join(cfg.Paths.LogDir, name)

			out := cmd.OutOrStdout()
			tail, offset, err := logs.Tail(path, lines, filter)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, 0, filter, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().BoolVar(&cli, "cli", false, "Read the CLI log instead of the daemon log")
	cmd.Flags().StringVar(&filter.StatementID, "statement", "", "Only lines for this statement")
	cmd.Flags().StringVar(&filter.JobID, "job", "", "Only lines for this job")
	cmd.Flags().StringVarP(&filter.TenantID, "tenant", "t", "", "Only lines for this tenant")
	cmd.Flags().StringVar(&filter.Level, "level", "", "Only lines at this level")
	return cmd
}
