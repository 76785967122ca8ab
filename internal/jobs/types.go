package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ParseStatus validates a job status string.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusQueued, StatusActive, StatusCompleted, StatusFailed:
		return Status(value), true
	}
	return "", false
}

// Job is one background processing request for a statement.
type Job struct {
	ID            string          `json:"id"`
	StatementID   string          `json:"statement_id"`
	TenantID      string          `json:"tenant_id,omitempty"`
	Status        Status          `json:"status"`
	Progress      float64         `json:"progress"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	Attempts      int             `json:"attempts"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	LastHeartbeat *time.Time      `json:"last_heartbeat,omitempty"`
}

// Store persists jobs.
type Store interface {
	InsertJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, statuses ...Status) ([]Job, error)
	// FindOpenJob returns the queued or active job for a statement, or nil.
	FindOpenJob(ctx context.Context, statementID string) (*Job, error)
	// ClaimNextJob moves the oldest queued job to active and returns it, or nil.
	ClaimNextJob(ctx context.Context) (*Job, error)
	UpdateJobProgress(ctx context.Context, id string, progress float64) error
	UpdateJobHeartbeat(ctx context.Context, id string) error
	FinishJob(ctx context.Context, id string, status Status, result json.RawMessage, message string) error
	// DeleteQueuedJob removes a job only while it is still queued.
	DeleteQueuedJob(ctx context.Context, id string) (bool, error)
	// ReclaimStaleJobs requeues active jobs whose heartbeat is older than cutoff.
	ReclaimStaleJobs(ctx context.Context, cutoff time.Time) (int64, error)
	CountJobs(ctx context.Context) (map[Status]int, error)
}

// ProgressFunc reports completion in [0,100].
type ProgressFunc func(percent float64)

// Handler runs a job and returns its JSON result.
type Handler func(ctx context.Context, job Job, progress ProgressFunc) (json.RawMessage, error)
