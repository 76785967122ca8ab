package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"royalties/internal/jobs"
	"royalties/internal/services"
	"royalties/internal/testsupport"
)

func newManager(t *testing.T, handler jobs.Handler, opts ...jobs.Option) (*jobs.Manager, jobs.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	opts = append([]jobs.Option{jobs.WithPollInterval(10 * time.Millisecond), jobs.WithHeartbeat(5*time.Millisecond, time.Minute)}, opts...)
	return jobs.NewManager(st, handler, opts...), st
}

func okHandler(_ context.Context, job jobs.Job, progress jobs.ProgressFunc) (json.RawMessage, error) {
	progress(50)
	return json.RawMessage(`{"statementId":"` + job.StatementID + `"}`), nil
}

func TestSubmitReturnsOpenJob(t *testing.T) {
	m, _ := newManager(t, okHandler)
	ctx := context.Background()

	first, err := m.Submit(ctx, "s-1", "tenant-a")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	second, err := m.Submit(ctx, "s-1", "tenant-a")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected duplicate submit to return %s, got %s", first.ID, second.ID)
	}
	if _, err := m.Submit(ctx, " ", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestProcessNextCompletesJob(t *testing.T) {
	m, _ := newManager(t, okHandler)
	ctx := context.Background()

	job, err := m.Submit(ctx, "s-1", "tenant-a")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	ran, err := m.ProcessNext(ctx)
	if err != nil || !ran {
		t.Fatalf("ProcessNext = %v, %v", ran, err)
	}
	got, err := m.Status(ctx, job.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got.Status != jobs.StatusCompleted || got.Progress != 100 || !strings.Contains(string(got.Result), "s-1") {
		t.Fatalf("unexpected job %+v", got)
	}
	if ran, err := m.ProcessNext(ctx); err != nil || ran {
		t.Fatalf("expected empty queue, got %v, %v", ran, err)
	}

	again, err := m.Submit(ctx, "s-1", "tenant-a")
	if err != nil || again.ID == job.ID {
		t.Fatalf("finished jobs must not block resubmission: %+v, %v", again, err)
	}
}

func TestProcessNextRecordsFailure(t *testing.T) {
	handler := func(context.Context, jobs.Job, jobs.ProgressFunc) (json.RawMessage, error) {
		return nil, services.Wrap(services.ErrValidation, "processor", "parse", "empty file", nil)
	}
	m, _ := newManager(t, handler)
	ctx := context.Background()

	job, _ := m.Submit(ctx, "s-1", "")
	if _, err := m.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	got, _ := m.Status(ctx, job.ID)
	if got.Status != jobs.StatusFailed || !strings.Contains(got.Error, "empty file") {
		t.Fatalf("unexpected job %+v", got)
	}
	if summary := m.Summary(ctx); summary.Counts[jobs.StatusFailed] != 1 || summary.LastError == "" {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestTaskTimeoutFailsJob(t *testing.T) {
	handler := func(ctx context.Context, _ jobs.Job, _ jobs.ProgressFunc) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	m, _ := newManager(t, handler, jobs.WithTaskTimeout(20*time.Millisecond))
	ctx := context.Background()

	job, _ := m.Submit(ctx, "s-1", "")
	if _, err := m.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	got, _ := m.Status(ctx, job.ID)
	if got.Status != jobs.StatusFailed || !strings.Contains(got.Error, "timeout") {
		t.Fatalf("expected timeout failure, got %+v", got)
	}
}

func TestCancelOnlyQueuedJobs(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	handler := func(ctx context.Context, _ jobs.Job, _ jobs.ProgressFunc) (json.RawMessage, error) {
		close(started)
		<-release
		return nil, nil
	}
	m, _ := newManager(t, handler)
	ctx := context.Background()

	queued, _ := m.Submit(ctx, "s-queued", "")
	if err := m.Cancel(ctx, queued.ID); err != nil {
		t.Fatalf("Cancel queued: %v", err)
	}
	if _, err := m.Status(ctx, queued.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("cancelled job should be gone, got %v", err)
	}

	active, _ := m.Submit(ctx, "s-active", "")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.ProcessNext(ctx)
	}()
	<-started
	if err := m.Cancel(ctx, active.ID); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict cancelling active job, got %v", err)
	}
	close(release)
	<-done
	if err := m.Cancel(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLockedStatementFailsJob(t *testing.T) {
	locker := jobs.NewLocalLocker()
	lease, err := locker.Obtain(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("Obtain: %v", err)
	}
	m, _ := newManager(t, okHandler, jobs.WithLocker(locker))
	ctx := context.Background()

	job, _ := m.Submit(ctx, "s-1", "")
	if _, err := m.ProcessNext(ctx); err != nil {
		t.Fatalf("ProcessNext: %v", err)
	}
	got, _ := m.Status(ctx, job.ID)
	if got.Status != jobs.StatusFailed {
		t.Fatalf("expected locked job to fail, got %+v", got)
	}

	_ = lease.Release(ctx)
	if _, err := locker.Obtain(ctx, "s-1"); err != nil {
		t.Fatalf("lock should be free after release: %v", err)
	}
}

func TestLocalLockerExclusive(t *testing.T) {
	locker := jobs.NewLocalLocker()
	ctx := context.Background()
	lease, err := locker.Obtain(ctx, "k")
	if err != nil {
		t.Fatalf("Obtain: %v", err)
	}
	if _, err := locker.Obtain(ctx, "k"); !errors.Is(err, jobs.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	_ = lease.Release(ctx)
	_ = lease.Release(ctx)
	if _, err := locker.Obtain(ctx, "k"); err != nil {
		t.Fatalf("Obtain after release: %v", err)
	}
}

func TestStartProcessesQueuedJobs(t *testing.T) {
	m, _ := newManager(t, okHandler)
	ctx := context.Background()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()
	if err := m.Start(ctx); err == nil {
		t.Fatalf("expected error starting twice")
	}

	job, err := m.Submit(ctx, "s-1", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := m.Status(ctx, job.ID)
		if err == nil && got.Status == jobs.StatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job did not complete before deadline")
}
