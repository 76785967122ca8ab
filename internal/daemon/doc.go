// Package daemon coordinates the long-running royaltyd process.
//
// It ties the job manager, the catalog invalidation bus, and the inbox
// watcher into a single lifecycle with flock-based locking to prevent
// multiple instances on one data directory.
//
// Keep orchestration logic here: processing itself lives in the processor
// and jobs packages while the daemon focuses on startup, shutdown, and
// status reporting.
package daemon
