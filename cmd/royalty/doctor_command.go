package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"royalties/internal/daemon"
	"royalties/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var notify bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, database, and configured services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			c := cmd.Context()
			results := []preflight.Result{
				preflight.CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
				preflight.CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
				preflight.CheckDatabase(c, cfg.DatabasePath()),
			}
			if cfg.Paths.InboxDir != "" {
				results = append(results, preflight.CheckDirectoryAccess("Inbox directory", cfg.Paths.InboxDir))
			}
			results = append(results,
				preflight.CheckEmbeddingsFromConfig(cfg),
				preflight.CheckLLMFromConfig(c, cfg),
				preflight.CheckRedisFromConfig(c, cfg),
				preflight.CheckNotificationsFromConfig(c, cfg, notify),
			)
			running, lockErr := daemon.Locked(cfg)

			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"checks": results, "daemon_running": running && lockErr == nil})
			}
			out := cmd.OutOrStdout()
			rows := make([][]string, 0, len(results)+1)
			for _, r := range results {
				mark := colorStatus(out, "ok", "ok")
				if !r.Passed {
					mark = colorStatus(out, "FAIL", "bad")
				}
				rows = append(rows, []string{r.Name, mark, r.Detail})
			}
			daemonDetail := "not running"
			if lockErr != nil {
				daemonDetail = lockErr.Error()
			} else if running {
				daemonDetail = "running (" + daemon.LockPath(cfg) + ")"
			}
			rows = append(rows, []string{"Daemon", yesNo(running), daemonDetail})
			fmt.Fprintln(out, renderTable([]string{"Check", "Result", "Detail"}, rows))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "Send a test notification")
	return cmd
}
