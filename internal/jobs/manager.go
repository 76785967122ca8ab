package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"royalties/internal/logging"
	"royalties/internal/services"
)

// Manager dispatches queued jobs to a handler.
type Manager struct {
	store   Store
	handler Handler
	locker  Locker
	logger  *slog.Logger

	workers           int
	pollInterval      time.Duration
	errorRetry        time.Duration
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	taskTimeout       time.Duration
	now               func() time.Time

	wake chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLocker replaces the default in-process locker.
func WithLocker(locker Locker) Option {
	return func(m *Manager) {
		if locker != nil {
			m.locker = locker
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logging.NewComponentLogger(logger, "jobs") }
}

// WithWorkers sets how many jobs run at once.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithPollInterval sets how long idle workers sleep between queue checks.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// WithErrorRetryInterval sets the pause after a failed queue read.
func WithErrorRetryInterval(d time.Duration) Option {
	return func(m *Manager) { m.errorRetry = d }
}

// WithHeartbeat sets the heartbeat cadence and the age after which an active
// job is considered abandoned.
func WithHeartbeat(interval, timeout time.Duration) Option {
	return func(m *Manager) {
		m.heartbeatInterval = interval
		m.heartbeatTimeout = timeout
	}
}

// WithTaskTimeout bounds each handler run. Zero disables the limit.
func WithTaskTimeout(d time.Duration) Option {
	return func(m *Manager) { m.taskTimeout = d }
}

// NewManager constructs a manager over store.
func NewManager(store Store, handler Handler, opts ...Option) *Manager {
	m := &Manager{
		store:             store,
		handler:           handler,
		locker:            NewLocalLocker(),
		logger:            logging.NewComponentLogger(nil, "jobs"),
		workers:           1,
		pollInterval:      5 * time.Second,
		errorRetry:        10 * time.Second,
		heartbeatInterval: 15 * time.Second,
		heartbeatTimeout:  2 * time.Minute,
		now:               time.Now,
		wake:              make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit queues a job for statementID. When the statement already has a
// queued or active job, that job is returned instead.
func (m *Manager) Submit(ctx context.Context, statementID, tenantID string) (*Job, error) {
	statementID = strings.TrimSpace(statementID)
	if statementID == "" {
		return nil, services.Wrap(services.ErrValidation, "jobs", "submit", "statement id required", nil)
	}
	existing, err := m.store.FindOpenJob(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	now := m.now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		StatementID: statementID,
		TenantID:    tenantID,
		Status:      StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.InsertJob(ctx, job); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "jobs", "submit", "", err)
	}
	m.logger.Info("job queued",
		logging.String(logging.FieldEventType, "job_queued"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldStatementID, statementID),
	)
	m.signal()
	return job, nil
}

// Cancel removes a queued job. Active and finished jobs cannot be cancelled.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	deleted, err := m.store.DeleteQueuedJob(ctx, id)
	if err != nil {
		return err
	}
	if deleted {
		m.logger.Info("job cancelled",
			logging.String(logging.FieldEventType, "job_cancelled"),
			logging.String(logging.FieldJobID, id),
		)
		return nil
	}
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return services.Wrap(services.ErrConflict, "jobs", "cancel", fmt.Sprintf("job %s is %s", id, job.Status), nil)
}

// Status returns one job.
func (m *Manager) Status(ctx context.Context, id string) (*Job, error) {
	return m.store.GetJob(ctx, id)
}

// List returns jobs, optionally filtered by status.
func (m *Manager) List(ctx context.Context, statuses ...Status) ([]Job, error) {
	return m.store.ListJobs(ctx, statuses...)
}

// Summary reports queue counts and the last worker error.
type Summary struct {
	Running   bool
	Counts    map[Status]int
	LastError string
}

// Summary returns queue diagnostics.
func (m *Manager) Summary(ctx context.Context) Summary {
	m.mu.Lock()
	summary := Summary{Running: m.running}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	m.mu.Unlock()
	counts, err := m.store.CountJobs(ctx)
	if err != nil {
		m.logger.Warn("failed to read job counts", logging.Error(err))
	}
	summary.Counts = counts
	return summary
}

// Start launches the worker loops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("job manager already running")
	}
	if m.handler == nil {
		return errors.New("job handler not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	for i := 0; i < m.workers; i++ {
		go m.runWorker(runCtx, i == 0)
	}
	return nil
}

// Stop cancels the workers and waits for them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// ProcessNext claims and runs one queued job. It reports false when the queue
// was empty.
func (m *Manager) ProcessNext(ctx context.Context) (bool, error) {
	job, err := m.store.ClaimNextJob(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	m.run(ctx, *job)
	return true, nil
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) runWorker(ctx context.Context, reclaimer bool) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if reclaimer {
			m.reclaimStale(ctx)
		}

		ran, err := m.ProcessNext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			m.logger.Error("failed to claim next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_claim_failed"),
				logging.String(logging.FieldErrorHint, "check database access"),
			)
			m.sleep(ctx, m.errorRetry)
			continue
		}
		if !ran {
			m.sleep(ctx, m.pollInterval)
		}
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-time.After(d):
	}
}

func (m *Manager) reclaimStale(ctx context.Context) {
	if m.heartbeatTimeout <= 0 {
		return
	}
	reclaimed, err := m.store.ReclaimStaleJobs(ctx, m.now().Add(-m.heartbeatTimeout))
	if err != nil {
		m.logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
			logging.Error(err),
			logging.String(logging.FieldEventType, "job_reclaim_failed"),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
		return
	}
	if reclaimed > 0 {
		m.logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
	}
}

func (m *Manager) run(ctx context.Context, job Job) {
	jobCtx := services.WithJobID(ctx, job.ID)
	jobCtx = services.WithStatementID(jobCtx, job.StatementID)
	if job.TenantID != "" {
		jobCtx = services.WithTenant(jobCtx, job.TenantID)
	}
	logger := logging.WithContext(jobCtx, m.logger)
	// Writes after the handler returns must survive shutdown.
	persistCtx := context.WithoutCancel(jobCtx)

	lease, err := m.locker.Obtain(jobCtx, job.StatementID)
	if err != nil {
		m.finish(persistCtx, logger, job, nil, err)
		return
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(persistCtx, 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			logger.Warn("failed to release statement lock", logging.Error(err))
		}
	}()

	taskCtx, cancelTask := jobCtx, context.CancelFunc(func() {})
	if m.taskTimeout > 0 {
		taskCtx, cancelTask = context.WithTimeout(jobCtx, m.taskTimeout)
	}
	defer cancelTask()

	hbCtx, stopHeartbeat := context.WithCancel(taskCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeatLoop(hbCtx, &hbWG, logger, job.ID, lease)

	logger.Info("job started", logging.String(logging.FieldEventType, "job_started"))
	started := m.now()
	result, runErr := m.handler(taskCtx, job, func(percent float64) {
		if err := m.store.UpdateJobProgress(persistCtx, job.ID, percent); err != nil {
			logger.Debug("progress update failed", logging.Error(err))
		}
	})
	stopHeartbeat()
	hbWG.Wait()

	if runErr != nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) && jobCtx.Err() == nil {
		runErr = services.Wrap(services.ErrTimeout, "jobs", "run", fmt.Sprintf("exceeded task timeout of %s", m.taskTimeout), runErr)
	}
	if runErr != nil && ctx.Err() != nil {
		logger.Info("daemon shutting down; job left for reclaim",
			logging.String(logging.FieldEventType, "job_interrupted"),
			logging.Duration("elapsed", m.now().Sub(started)),
		)
		return
	}
	m.finish(persistCtx, logger, job, result, runErr)
}

func (m *Manager) finish(ctx context.Context, logger *slog.Logger, job Job, result json.RawMessage, runErr error) {
	if runErr == nil {
		if err := m.store.FinishJob(ctx, job.ID, StatusCompleted, result, ""); err != nil {
			logger.Error("failed to record job completion", logging.Error(err))
			return
		}
		logger.Info("job completed", logging.String(logging.FieldEventType, "job_completed"))
		return
	}

	m.setLastError(runErr)
	logging.ErrorWithContext(logger, "job failed", "job_failed",
		logging.String(logging.FieldImpact, "statement not processed"),
		logging.Error(runErr),
	)
	if err := m.store.FinishJob(ctx, job.ID, StatusFailed, result, runErr.Error()); err != nil {
		logger.Error("failed to record job failure", logging.Error(err))
	}
}

func (m *Manager) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, logger *slog.Logger, jobID string, lease Lease) {
	defer wg.Done()
	if m.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.store.UpdateJobHeartbeat(ctx, jobID); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
			if err := lease.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("statement lock refresh failed", logging.Error(err))
			}
		}
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
