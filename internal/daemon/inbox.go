package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"royalties/internal/jobs"
	"royalties/internal/logging"
	"royalties/internal/processor"
	"royalties/internal/services"
	"royalties/internal/statement"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Uploader stores statement files.
type Uploader interface {
	UploadStatement(ctx context.Context, upload processor.Upload) (*statement.Statement, error)
}

// Submitter queues statements for processing.
type Submitter interface {
	Submit(ctx context.Context, statementID, tenantID string) (*jobs.Job, error)
}

// Inbox picks up statement files dropped into <dir>/<tenant>/. Each accepted
// file is uploaded, queued, and moved to the tenant's processed/ folder;
// rejected files go to failed/ next to a .error note.
type Inbox struct {
	dir       string
	uploader  Uploader
	submitter Submitter
	interval  time.Duration
	logger    *slog.Logger
}

// NewInbox constructs an inbox watcher polling dir every interval.
func NewInbox(dir string, uploader Uploader, submitter Submitter, interval time.Duration, logger *slog.Logger) *Inbox {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Inbox{
		dir:       dir,
		uploader:  uploader,
		submitter: submitter,
		interval:  interval,
		logger:    logging.NewComponentLogger(logger, "inbox"),
	}
}

// Dir returns the watched directory.
func (i *Inbox) Dir() string { return i.dir }

// Run scans until ctx is cancelled.
func (i *Inbox) Run(ctx context.Context) {
	ticker := time.NewTicker(i.interval)
	defer ticker.Stop()
	for {
		if _, err := i.Scan(ctx); err != nil && ctx.Err() == nil {
			i.logger.Warn("inbox scan failed", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Scan ingests every pending file once and returns how many were queued.
func (i *Inbox) Scan(ctx context.Context) (int, error) {
	tenants, err := os.ReadDir(i.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read inbox: %w", err)
	}
	queued := 0
	for _, tenant := range tenants {
		if !tenant.IsDir() || strings.HasPrefix(tenant.Name(), ".") {
			continue
		}
		files, err := i.pending(filepath.Join(i.dir, tenant.Name()))
		if err != nil {
			return queued, err
		}
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return queued, err
			}
			if i.ingest(ctx, tenant.Name(), path) {
				queued++
			}
		}
	}
	return queued, nil
}

func (i *Inbox) pending(tenantDir string) ([]string, error) {
	entries, err := os.ReadDir(tenantDir)
	if err != nil {
		return nil, fmt.Errorf("read tenant inbox: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, err := statement.DetectFormat(entry.Name()); err != nil {
			continue
		}
		files = append(files, filepath.Join(tenantDir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (i *Inbox) ingest(ctx context.Context, tenantID, path string) bool {
	ctx = services.WithTenant(ctx, tenantID)
	logger := logging.WithContext(ctx, i.logger).With(logging.String("file", path))

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("inbox file unreadable", logging.Error(err))
		return false
	}
	stmt, err := i.uploader.UploadStatement(ctx, processor.Upload{
		TenantID: tenantID,
		Source:   "inbox",
		FileName: filepath.Base(path),
		Data:     data,
	})
	if err != nil {
		details := services.Details(err)
		logging.WarnWithContext(logger, "inbox file rejected", "inbox_rejected",
			logging.String(logging.FieldImpact, "file moved to failed/"),
			logging.Error(err),
		)
		i.move(logger, path, failedDir)
		note := filepath.Join(filepath.Dir(path), failedDir, filepath.Base(path)+".error")
		if werr := os.WriteFile(note, []byte(details.Message+"\n"), 0o644); werr != nil {
			logger.Warn("failed to write rejection note", logging.Error(werr))
		}
		return false
	}
	job, err := i.submitter.Submit(ctx, stmt.ID, tenantID)
	if err != nil {
		// Stored already; moving the file keeps it from being uploaded twice.
		logging.ErrorWithContext(logger, "inbox statement stored but not queued", "inbox_submit_failed",
			logging.String(logging.FieldStatementID, stmt.ID),
			logging.String(logging.FieldErrorHint, "queue it with royalty process "+stmt.ID),
			logging.String(logging.FieldImpact, "statement waits in uploaded state"),
			logging.Error(err),
		)
		i.move(logger, path, processedDir)
		return false
	}
	i.move(logger, path, processedDir)
	logger.Info("inbox statement queued",
		logging.String(logging.FieldEventType, "inbox_queued"),
		logging.String(logging.FieldStatementID, stmt.ID),
		logging.String(logging.FieldJobID, job.ID),
	)
	return true
}

func (i *Inbox) move(logger *slog.Logger, path, sub string) {
	target := filepath.Join(filepath.Dir(path), sub)
	if err := os.MkdirAll(target, 0o755); err != nil {
		logger.Warn("failed to create inbox folder", logging.Error(err))
		return
	}
	if err := os.Rename(path, filepath.Join(target, filepath.Base(path))); err != nil {
		logger.Warn("failed to move inbox file", logging.Error(err))
	}
}
