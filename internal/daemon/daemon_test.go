package daemon_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"royalties/internal/daemon"
	"royalties/internal/jobs"
	"royalties/internal/processor"
	"royalties/internal/services"
	"royalties/internal/statement"
	"royalties/internal/testsupport"
)

type fakeRunner struct {
	mu      sync.Mutex
	started int
	stopped int
}

func (r *fakeRunner) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started++
	return nil
}

func (r *fakeRunner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
}

func (r *fakeRunner) Summary(context.Context) jobs.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return jobs.Summary{Running: r.started > r.stopped}
}

type blockingSubscriber struct {
	done chan struct{}
}

func (s *blockingSubscriber) Run(ctx context.Context) error {
	<-ctx.Done()
	close(s.done)
	return ctx.Err()
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	runner := &fakeRunner{}
	sub := &blockingSubscriber{done: make(chan struct{})}
	d, err := daemon.New(cfg, nil, runner, daemon.WithSubscriber(sub))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || !status.Jobs.Running {
		t.Fatalf("expected daemon to report running, got %+v", status)
	}
	if status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("unexpected database path %q", status.DatabasePath)
	}
	locked, err := daemon.Locked(cfg)
	if err != nil || !locked {
		t.Fatalf("expected lock to be held, locked=%v err=%v", locked, err)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other, err := daemon.New(cfg, nil, &fakeRunner{})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(ctx); err == nil {
		t.Fatal("expected a second instance to be refused")
	}

	d.Stop()
	select {
	case <-sub.done:
	case <-time.After(time.Second):
		t.Fatal("subscriber was not stopped")
	}
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
	if runner.started != 1 || runner.stopped != 1 {
		t.Fatalf("unexpected runner lifecycle: %+v", runner)
	}
	locked, err = daemon.Locked(cfg)
	if err != nil || locked {
		t.Fatalf("expected lock to be released, locked=%v err=%v", locked, err)
	}
}

type recordingUploader struct {
	uploads []processor.Upload
}

func (u *recordingUploader) UploadStatement(_ context.Context, upload processor.Upload) (*statement.Statement, error) {
	if strings.Contains(string(upload.Data), "broken") {
		return nil, services.Wrap(services.ErrValidation, "parse", "header", "no title or identifier column in header", nil)
	}
	u.uploads = append(u.uploads, upload)
	return &statement.Statement{ID: "stmt-" + upload.FileName, TenantID: upload.TenantID}, nil
}

type recordingSubmitter struct {
	submitted []string
	fail      bool
}

func (s *recordingSubmitter) Submit(_ context.Context, statementID, _ string) (*jobs.Job, error) {
	if s.fail {
		return nil, errors.New("queue unavailable")
	}
	s.submitted = append(s.submitted, statementID)
	return &jobs.Job{ID: "job-" + statementID, StatementID: statementID}, nil
}

func TestInboxScan(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "tenant-a", "q1.csv"), []byte("title,amount\nYesterday,1\n"))
	testsupport.WriteFile(t, filepath.Join(dir, "tenant-a", "bad.csv"), []byte("broken\n"))
	testsupport.WriteFile(t, filepath.Join(dir, "tenant-a", "notes.txt"), []byte("ignore me"))
	testsupport.WriteFile(t, filepath.Join(dir, "tenant-b", "q2.xlsx"), []byte("not really xlsx"))

	uploader := &recordingUploader{}
	submitter := &recordingSubmitter{}
	inbox := daemon.NewInbox(dir, uploader, submitter, time.Second, nil)

	queued, err := inbox.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if queued != 2 {
		t.Fatalf("expected 2 queued files, got %d", queued)
	}
	if len(uploader.uploads) != 2 || uploader.uploads[0].TenantID != "tenant-a" || uploader.uploads[1].TenantID != "tenant-b" {
		t.Fatalf("unexpected uploads: %+v", uploader.uploads)
	}
	if uploader.uploads[0].Source != "inbox" {
		t.Fatalf("expected inbox source, got %q", uploader.uploads[0].Source)
	}

	for _, path := range []string{
		filepath.Join(dir, "tenant-a", "processed", "q1.csv"),
		filepath.Join(dir, "tenant-b", "processed", "q2.xlsx"),
		filepath.Join(dir, "tenant-a", "failed", "bad.csv"),
		filepath.Join(dir, "tenant-a", "failed", "bad.csv.error"),
		filepath.Join(dir, "tenant-a", "notes.txt"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s: %v", path, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "tenant-a", "q1.csv")); !os.IsNotExist(err) {
		t.Fatalf("expected q1.csv to be moved, stat err=%v", err)
	}

	queued, err = inbox.Scan(context.Background())
	if err != nil || queued != 0 {
		t.Fatalf("second scan should find nothing, queued=%d err=%v", queued, err)
	}
}

func TestInboxMissingDirectory(t *testing.T) {
	inbox := daemon.NewInbox(filepath.Join(t.TempDir(), "absent"), &recordingUploader{}, &recordingSubmitter{}, 0, nil)
	queued, err := inbox.Scan(context.Background())
	if err != nil || queued != 0 {
		t.Fatalf("expected empty scan, queued=%d err=%v", queued, err)
	}
}

func TestInboxSubmitFailureDoesNotReupload(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(dir, "tenant-a", "q1.csv"), []byte("title,amount\nYesterday,1\n"))
	uploader := &recordingUploader{}
	inbox := daemon.NewInbox(dir, uploader, &recordingSubmitter{fail: true}, time.Second, nil)

	for range 2 {
		if _, err := inbox.Scan(context.Background()); err != nil {
			t.Fatalf("Scan: %v", err)
		}
	}
	if len(uploader.uploads) != 1 {
		t.Fatalf("expected a single upload, got %d", len(uploader.uploads))
	}
}
