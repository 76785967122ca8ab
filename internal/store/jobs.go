package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"royalties/internal/jobs"
)

const jobColumns = "id, statement_id, tenant_id, status, progress, result_json, error_message, attempts, created_at, updated_at, started_at, finished_at, last_heartbeat"

func scanJob(sc scanner) (*jobs.Job, error) {
	var (
		job           jobs.Job
		tenantID      sql.NullString
		status        string
		result        sql.NullString
		errorMessage  sql.NullString
		createdRaw    string
		updatedRaw    string
		startedAt     sql.NullString
		finishedAt    sql.NullString
		lastHeartbeat sql.NullString
	)
	if err := sc.Scan(
		&job.ID, &job.StatementID, &tenantID, &status, &job.Progress, &result, &errorMessage,
		&job.Attempts, &createdRaw, &updatedRaw, &startedAt, &finishedAt, &lastHeartbeat,
	); err != nil {
		return nil, err
	}
	job.TenantID = tenantID.String
	job.Status = jobs.Status(status)
	if result.Valid && result.String != "" {
		job.Result = json.RawMessage(result.String)
	}
	job.Error = errorMessage.String
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = parseNullTime(startedAt)
	job.FinishedAt = parseNullTime(finishedAt)
	job.LastHeartbeat = parseNullTime(lastHeartbeat)
	return &job, nil
}

// InsertJob stores a new job.
func (s *Store) InsertJob(ctx context.Context, job *jobs.Job) error {
	_, err := s.execWithRetry(ctx,
		"INSERT INTO jobs (id, statement_id, tenant_id, status, progress, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		job.ID, job.StatementID, nullableString(job.TenantID), string(job.Status), job.Progress,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob returns one job.
func (s *Store) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ensureContext(ctx), "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get job", "job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs oldest first, optionally filtered by status.
func (s *Store) ListJobs(ctx context.Context, statuses ...jobs.Status) ([]jobs.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += " ORDER BY created_at, id"
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var out []jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// FindOpenJob returns the queued or active job for a statement, or nil.
func (s *Store) FindOpenJob(ctx context.Context, statementID string) (*jobs.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+jobColumns+" FROM jobs WHERE statement_id = ? AND status IN (?, ?) ORDER BY created_at LIMIT 1",
		statementID, string(jobs.StatusQueued), string(jobs.StatusActive)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open job: %w", err)
	}
	return job, nil
}

// ClaimNextJob moves the oldest queued job to active.
func (s *Store) ClaimNextJob(ctx context.Context) (*jobs.Job, error) {
	var claimed *jobs.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		claimed = nil
		job, err := scanJob(tx.QueryRowContext(ctx,
			"SELECT "+jobColumns+" FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1",
			string(jobs.StatusQueued)))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select next job: %w", err)
		}
		now := time.Now().UTC()
		res, err := tx.ExecContext(ctx,
			"UPDATE jobs SET status = ?, attempts = attempts + 1, started_at = ?, last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?",
			string(jobs.StatusActive), formatTime(now), formatTime(now), formatTime(now), job.ID, string(jobs.StatusQueued))
		if err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		job.Status = jobs.StatusActive
		job.Attempts++
		job.StartedAt = &now
		job.LastHeartbeat = &now
		job.UpdatedAt = now
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// UpdateJobProgress records completion percent for an active job.
func (s *Store) UpdateJobProgress(ctx context.Context, id string, progress float64) error {
	_, err := s.execWithRetry(ctx,
		"UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ? AND status = ?",
		progress, formatTime(time.Now()), id, string(jobs.StatusActive))
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// UpdateJobHeartbeat refreshes an active job's heartbeat.
func (s *Store) UpdateJobHeartbeat(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	_, err := s.execWithRetry(ctx,
		"UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?",
		now, now, id, string(jobs.StatusActive))
	if err != nil {
		return fmt.Errorf("update job heartbeat: %w", err)
	}
	return nil
}

// FinishJob records a terminal status.
func (s *Store) FinishJob(ctx context.Context, id string, status jobs.Status, result json.RawMessage, message string) error {
	now := formatTime(time.Now())
	progress := "progress"
	if status == jobs.StatusCompleted {
		progress = "100"
	}
	var encoded any
	if len(result) > 0 {
		encoded = string(result)
	}
	res, err := s.execWithRetry(ctx,
		"UPDATE jobs SET status = ?, progress = "+progress+", result_json = ?, error_message = ?, finished_at = ?, updated_at = ? WHERE id = ?",
		string(status), encoded, nullableString(message), now, now, id)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("finish job", "job", id)
	}
	return nil
}

// DeleteQueuedJob removes a job that has not started.
func (s *Store) DeleteQueuedJob(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM jobs WHERE id = ? AND status = ?", id, string(jobs.StatusQueued))
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ReclaimStaleJobs requeues active jobs whose heartbeat is older than cutoff.
func (s *Store) ReclaimStaleJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		"UPDATE jobs SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)",
		string(jobs.StatusQueued), formatTime(time.Now()), string(jobs.StatusActive), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// CountJobs groups jobs by status.
func (s *Store) CountJobs(ctx context.Context) (map[jobs.Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT status, COUNT(1) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()
	counts := make(map[jobs.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[jobs.Status(status)] = count
	}
	return counts, rows.Err()
}
