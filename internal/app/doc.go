// Package app assembles the royalty services from configuration. The CLI
// and the daemon share one wiring so both see the same store, cache,
// engine, and job queue.
package app
