package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"royalties/internal/config"
	"royalties/internal/jobs"
	"royalties/internal/logging"
)

// JobRunner is the background job manager.
type JobRunner interface {
	Start(ctx context.Context) error
	Stop()
	Summary(ctx context.Context) jobs.Summary
}

// Subscriber runs until ctx is cancelled. The catalog bus satisfies it.
type Subscriber interface {
	Run(ctx context.Context) error
}

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	jobs   JobRunner
	bus    Subscriber
	inbox  *Inbox

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool         `json:"running"`
	Jobs         jobs.Summary `json:"jobs"`
	DatabasePath string       `json:"database_path"`
	LockFilePath string       `json:"lock_file_path"`
	InboxDir     string       `json:"inbox_dir,omitempty"`
}

// Option configures optional daemon services.
type Option func(*Daemon)

// WithSubscriber runs s for the daemon's lifetime.
func WithSubscriber(s Subscriber) Option {
	return func(d *Daemon) { d.bus = s }
}

// WithInbox enables inbox polling.
func WithInbox(inbox *Inbox) Option {
	return func(d *Daemon) { d.inbox = inbox }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, runner JobRunner, opts ...Option) (*Daemon, error) {
	if cfg == nil || runner == nil {
		return nil, errors.New("daemon requires config and job runner")
	}
	lockPath := LockPath(cfg)
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		jobs:     runner,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// LockPath is the single-instance lock file for cfg.
func LockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "royaltyd.lock")
}

// Start acquires the daemon lock and launches the job workers, the
// invalidation subscriber, and the inbox watcher.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another royaltyd instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.jobs.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start job manager: %w", err)
	}
	d.cancel = cancel

	if d.bus != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.bus.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(d.logger, "catalog invalidation subscriber stopped", "catalog_bus_stopped",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check redis connectivity"),
					logging.String(logging.FieldImpact, "catalog changes from other processes apply only after the cache TTL"),
				)
			}
		}()
	}
	if d.inbox != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.inbox.Run(runCtx)
		}()
	}

	d.running.Store(true)
	d.logger.Info("royaltyd started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.jobs.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("royaltyd stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		Jobs:         d.jobs.Summary(ctx),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
	}
	if d.inbox != nil {
		status.InboxDir = d.inbox.Dir()
	}
	return status
}

// Locked reports whether some process holds the daemon lock for cfg.
func Locked(cfg *config.Config) (bool, error) {
	probe := flock.New(LockPath(cfg))
	ok, err := probe.TryLock()
	if err != nil {
		return false, fmt.Errorf("probe lock: %w", err)
	}
	if ok {
		_ = probe.Unlock()
		return false, nil
	}
	return true, nil
}
