// Package logging assembles structured slog loggers and attribute helpers used
// by the reconciliation pipeline.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context-aware helpers that tag log lines with statement IDs, tenants, stages,
// and correlation IDs. A no-op logger is provided for tests and for wiring code
// that runs before configuration is loaded.
package logging
