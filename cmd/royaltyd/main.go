package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"royalties/internal/app"
	"royalties/internal/config"
	"royalties/internal/logging"
	"royalties/internal/preflight"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "wire services", "startup_failed", logging.Error(err))
		log.Fatalf("wire services: %v", err)
	}
	defer a.Close()

	for _, r := range preflight.Failed(preflight.RunAll(ctx, cfg, a.Redis)) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String(logging.FieldErrorHint, r.Detail),
			logging.String(logging.FieldImpact, "dependent matching stages or locks may degrade"),
		)
	}

	d, err := buildDaemon(cfg, a, logger)
	if err != nil {
		log.Fatalf("create daemon: %v", err)
	}
	if err := d.Start(ctx); err != nil {
		log.Fatalf("start daemon: %v", err)
	}

	<-ctx.Done()
	logger.Info("royaltyd shutting down")
	d.Stop()
}
