// Package jobs runs statement processing as background jobs.
//
// Jobs move through queued, active, and then completed or failed. The Manager
// claims queued jobs from a Store, holds a per-statement lock while the
// handler runs, refreshes a heartbeat so stale active jobs can be reclaimed
// after a crash, and enforces a per-task timeout. Queued jobs can be
// cancelled; active jobs observe cancellation only when the handler checks
// its context.
package jobs
