package main

import (
	"log/slog"
	"time"

	"royalties/internal/app"
	"royalties/internal/config"
	"royalties/internal/daemon"
)

func buildDaemon(cfg *config.Config, a *app.App, logger *slog.Logger) (*daemon.Daemon, error) {
	var opts []daemon.Option
	if cfg.RedisEnabled() {
		opts = append(opts, daemon.WithSubscriber(a.Bus))
	}
	if cfg.Paths.InboxDir != "" {
		interval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
		opts = append(opts, daemon.WithInbox(daemon.NewInbox(cfg.Paths.InboxDir, a.Processor, a.Jobs, interval, logger)))
	}
	return daemon.New(cfg, logger, a.Jobs, opts...)
}
