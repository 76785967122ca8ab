package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"royalties/internal/catalog"
	"royalties/internal/distribution"
	"royalties/internal/jobs"
	"royalties/internal/review"
	"royalties/internal/services"
	"royalties/internal/statement"
	"royalties/internal/store"
	"royalties/internal/testsupport"
)

func sampleRows() []statement.Row {
	rows := []statement.Row{
		{RowNumber: 1, Title: "Yesterday", Writer: "J. Lennon", Amount: decimal.RequireFromString("10.50"), Currency: "USD", Period: "2024-Q1", Raw: map[string]string{"title": "Yesterday"}},
		{RowNumber: 2, Title: "Let It Be", Amount: decimal.RequireFromString("4.25"), Currency: "USD", Period: "2024-Q1"},
		{RowNumber: 3, Title: "Unknown", Amount: decimal.RequireFromString("0.25"), Currency: "USD", Period: "2024-Q1"},
	}
	for i := range rows {
		rows[i].StatementID = "s-1"
		statement.NormalizeRow(&rows[i])
	}
	return rows
}

func TestOpenCreatesSchemaOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := testsupport.MustOpenStore(t, cfg)
	if err := first.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	reopened, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Path() != cfg.DatabasePath() {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
}

func TestStatementLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stmt := &statement.Statement{
		ID:       "s-1",
		TenantID: "tenant-a",
		FileName: "q1.csv",
		Format:   statement.FormatCSV,
		Status:   statement.StatusUploaded,
		File:     []byte("title,amount\n"),
	}
	if err := st.CreateStatement(ctx, stmt); err != nil {
		t.Fatalf("CreateStatement: %v", err)
	}
	if err := st.ReplaceRows(ctx, "s-1", sampleRows()); err != nil {
		t.Fatalf("ReplaceRows: %v", err)
	}

	got, err := st.GetStatement(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetStatement: %v", err)
	}
	if got.RowCount != 3 || !got.TotalGross.Equal(decimal.RequireFromString("15")) {
		t.Fatalf("unexpected totals: rows=%d gross=%s", got.RowCount, got.TotalGross)
	}
	if string(got.File) != "title,amount\n" {
		t.Fatalf("file payload not stored: %q", got.File)
	}

	if err := st.UpdateStatementStatus(ctx, "s-1", statement.StatusFailed, "boom"); err != nil {
		t.Fatalf("UpdateStatementStatus: %v", err)
	}
	stats := statement.Stats{ProcessedRows: 3, ExactMatches: 1, AverageMatchTimeMs: 1.5}
	if err := st.SaveStatementStats(ctx, "s-1", stats); err != nil {
		t.Fatalf("SaveStatementStats: %v", err)
	}
	got, err = st.GetStatement(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetStatement: %v", err)
	}
	if got.Status != statement.StatusFailed || got.ErrorMessage != "boom" || got.ProcessedAt == nil {
		t.Fatalf("unexpected status fields: %+v", got)
	}
	if got.Stats != stats {
		t.Fatalf("stats round trip mismatch: %+v", got.Stats)
	}

	listed, err := st.ListStatements(ctx, "tenant-a", []statement.Status{statement.StatusFailed}, 10)
	if err != nil || len(listed) != 1 {
		t.Fatalf("ListStatements = %d, %v", len(listed), err)
	}

	if _, err := st.GetStatement(ctx, "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceRowsClearsDerivedData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewStatement(t, st, "s-1", "tenant-a", sampleRows())

	now := time.Now()
	if _, err := st.UpsertReviewItems(ctx, []review.Item{{
		ID: "r-1", StatementID: "s-1", TenantID: "tenant-a", RowNumber: 2,
		Status: review.StatusPending, MatchStatus: statement.MatchFuzzyMedium, CreatedAt: now, UpdatedAt: now,
	}}); err != nil {
		t.Fatalf("UpsertReviewItems: %v", err)
	}

	rows := sampleRows()
	rows[0].MatchStatus = statement.MatchExact
	rows[0].MatchedWorkID = "w-1"
	rows[0].MatchConfidence = 1
	rows[0].MatchMethod = statement.MethodISWC
	if err := st.SaveMatchResults(ctx, "s-1", rows[:1]); err != nil {
		t.Fatalf("SaveMatchResults: %v", err)
	}
	stored, err := st.ListRows(ctx, "s-1")
	if err != nil {
		t.Fatalf("ListRows: %v", err)
	}
	if stored[0].MatchedWorkID != "w-1" || stored[0].MatchMethod != statement.MethodISWC {
		t.Fatalf("match fields not saved: %+v", stored[0])
	}
	if stored[0].Raw["title"] != "Yesterday" || len(stored[0].NormalizedWriters) == 0 {
		t.Fatalf("raw or normalized fields lost: %+v", stored[0])
	}

	if err := st.ReplaceRows(ctx, "s-1", sampleRows()[:2]); err != nil {
		t.Fatalf("ReplaceRows: %v", err)
	}
	stored, err = st.ListRows(ctx, "s-1")
	if err != nil {
		t.Fatalf("ListRows: %v", err)
	}
	if len(stored) != 2 || stored[0].MatchStatus != statement.MatchPending {
		t.Fatalf("expected fresh unmatched rows, got %+v", stored)
	}
	counts, err := st.CountReviewItems(ctx, "s-1")
	if err != nil {
		t.Fatalf("CountReviewItems: %v", err)
	}
	if counts[review.StatusPending] != 0 {
		t.Fatalf("expected review items cleared, got %v", counts)
	}
}

func TestResolveReviewItemCompletesStatement(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewStatement(t, st, "s-1", "tenant-a", sampleRows())
	if err := st.UpdateStatementStatus(ctx, "s-1", statement.StatusReview, ""); err != nil {
		t.Fatalf("UpdateStatementStatus: %v", err)
	}

	now := time.Now()
	items := []review.Item{
		{ID: "r-1", StatementID: "s-1", TenantID: "tenant-a", RowNumber: 1, Status: review.StatusPending, MatchStatus: statement.MatchFuzzyMedium, SuggestedWorkID: "w-1", CreatedAt: now, UpdatedAt: now},
		{ID: "r-2", StatementID: "s-1", TenantID: "tenant-a", RowNumber: 2, Status: review.StatusPending, MatchStatus: statement.MatchFuzzyLow, CreatedAt: now, UpdatedAt: now},
	}
	if n, err := st.UpsertReviewItems(ctx, items); err != nil || n != 2 {
		t.Fatalf("UpsertReviewItems = %d, %v", n, err)
	}

	approve := review.Resolution{Action: review.ActionApprove, WorkID: "w-1", Confidence: 1, ResolvedBy: "ana", ResolvedAt: now}
	match := review.RowMatch{Status: statement.MatchManual, WorkID: "w-1", Confidence: 1, Method: statement.MethodManual}
	changed, err := st.ResolveReviewItem(ctx, "r-1", approve, review.StatusApproved, match)
	if err != nil || !changed {
		t.Fatalf("ResolveReviewItem = %v, %v", changed, err)
	}
	changed, err = st.ResolveReviewItem(ctx, "r-1", approve, review.StatusApproved, match)
	if err != nil || changed {
		t.Fatalf("second resolve should be a no-op, got %v, %v", changed, err)
	}
	stmt, _ := st.GetStatement(ctx, "s-1")
	if stmt.Status != statement.StatusReview {
		t.Fatalf("statement completed too early: %s", stmt.Status)
	}

	reject := review.Resolution{Action: review.ActionReject, ResolvedBy: "ana", ResolvedAt: now}
	if _, err := st.ResolveReviewItem(ctx, "r-2", reject, review.StatusRejected, review.RowMatch{Status: statement.MatchNone, Method: statement.MethodManual}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	stmt, _ = st.GetStatement(ctx, "s-1")
	if stmt.Status != statement.StatusCompleted {
		t.Fatalf("expected statement completed, got %s", stmt.Status)
	}

	rows, _ := st.ListRows(ctx, "s-1")
	if rows[0].MatchStatus != statement.MatchManual || rows[0].MatchedWorkID != "w-1" {
		t.Fatalf("approved row not updated: %+v", rows[0])
	}
	if rows[1].MatchStatus != statement.MatchNone || rows[1].MatchMethod != statement.MethodManual {
		t.Fatalf("rejected row not updated: %+v", rows[1])
	}

	item, err := st.GetReviewItem(ctx, "r-1")
	if err != nil {
		t.Fatalf("GetReviewItem: %v", err)
	}
	if item.Resolution == nil || item.Resolution.ResolvedBy != "ana" {
		t.Fatalf("resolution not stored: %+v", item)
	}
	if _, err := st.ResolveReviewItem(ctx, "missing", reject, review.StatusRejected, review.RowMatch{}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCatalogRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	works := []catalog.Work{{
		ID:              "w-1",
		Code:            "AB-1",
		Title:           "Yesterday",
		ISWC:            "T0700190344",
		AlternateTitles: []string{"Scrambled Eggs"},
		Writers:         []catalog.Writer{{ID: "p-1", Name: "John Lennon", Share: decimal.NewFromInt(100), RightShares: map[string]decimal.Decimal{"sync": decimal.NewFromInt(50)}}},
		Recordings:      []catalog.Recording{{ISRC: "GBAYE6500001"}},
		Embedding:       []float32{0.5, 0.25},
	}}
	testsupport.SeedCatalog(t, st, "tenant-a", works)

	works[0].Title = "Yesterday (Remastered)"
	testsupport.SeedCatalog(t, st, "tenant-a", works)

	loaded, err := st.LoadWorks(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("LoadWorks: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 work, got %d", len(loaded))
	}
	w := loaded[0]
	if w.Title != "Yesterday (Remastered)" || w.TenantID != "tenant-a" || len(w.Embedding) != 2 {
		t.Fatalf("unexpected work %+v", w)
	}
	if !w.Writers[0].RightShares["sync"].Equal(decimal.NewFromInt(50)) {
		t.Fatalf("right shares lost: %+v", w.Writers[0])
	}
	if other, _ := st.LoadWorks(ctx, "tenant-b"); len(other) != 0 {
		t.Fatalf("tenant isolation broken: %+v", other)
	}
	counts, err := st.CountWorks(ctx)
	if err != nil || counts["tenant-a"] != 1 {
		t.Fatalf("CountWorks = %v, %v", counts, err)
	}
	if n, err := st.DeleteWorks(ctx, "tenant-a", nil); err != nil || n != 1 {
		t.Fatalf("DeleteWorks = %d, %v", n, err)
	}
}

func TestDistributionPersistence(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewStatement(t, st, "s-1", "tenant-a", sampleRows())

	now := time.Now()
	dists := []distribution.Distribution{
		{ID: "d-1", StatementID: "s-1", TenantID: "tenant-a", WorkID: "w-1", PartyType: distribution.PartyWriter, WriterID: "p-1", RightType: "performance", Gross: decimal.RequireFromString("10.50"), SharePercent: decimal.NewFromInt(50), Net: decimal.RequireFromString("5.25"), RowNumbers: []int{1}, Status: distribution.PayoutPending, CreatedAt: now},
		{ID: "d-2", StatementID: "s-1", TenantID: "tenant-a", WorkID: "w-1", PartyType: distribution.PartyPublisher, PublisherID: "pub-1", RightType: "performance", Gross: decimal.RequireFromString("10.50"), SharePercent: decimal.NewFromInt(50), Net: decimal.RequireFromString("5.25"), RowNumbers: []int{1}, Status: distribution.PayoutPending, CreatedAt: now},
	}
	summary := distribution.Summary{StatementID: "s-1", TotalGross: decimal.NewFromInt(15), TotalDistributed: decimal.RequireFromString("10.5"), TotalUndistributed: decimal.RequireFromString("4.5"), MatchRate: 1.0 / 3, CalculatedAt: now}
	if err := st.ReplaceDistributions(ctx, "s-1", dists, summary); err != nil {
		t.Fatalf("ReplaceDistributions: %v", err)
	}
	if err := st.ReplaceDistributions(ctx, "s-1", dists, summary); err != nil {
		t.Fatalf("second ReplaceDistributions: %v", err)
	}

	listed, err := st.ListDistributions(ctx, distribution.Filter{StatementID: "s-1"})
	if err != nil || len(listed) != 2 {
		t.Fatalf("ListDistributions = %d, %v", len(listed), err)
	}
	byWriter, err := st.ListDistributions(ctx, distribution.Filter{WriterID: "p-1"})
	if err != nil || len(byWriter) != 1 || !byWriter[0].Net.Equal(decimal.RequireFromString("5.25")) {
		t.Fatalf("writer filter = %+v, %v", byWriter, err)
	}

	got, err := st.GetDistributionSummary(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetDistributionSummary: %v", err)
	}
	if !got.TotalUndistributed.Equal(decimal.RequireFromString("4.5")) {
		t.Fatalf("summary round trip mismatch: %+v", got)
	}

	n, err := st.MarkDistributionsPaid(ctx, []string{"d-1", "d-1", "missing"}, now)
	if err != nil || n != 1 {
		t.Fatalf("MarkDistributionsPaid = %d, %v", n, err)
	}
	paid, _ := st.ListDistributions(ctx, distribution.Filter{Status: distribution.PayoutPaid})
	if len(paid) != 1 || paid[0].PaidAt == nil {
		t.Fatalf("expected one paid distribution, got %+v", paid)
	}

	bad := dists[0]
	bad.ID = "d-3"
	bad.PublisherID = "pub-1"
	if err := st.ReplaceDistributions(ctx, "s-1", []distribution.Distribution{bad}, summary); err == nil {
		t.Fatalf("expected check constraint to reject a row with both party ids")
	}
}

func TestJobQueueTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	now := time.Now()
	for i, id := range []string{"j-1", "j-2"} {
		job := &jobs.Job{ID: id, StatementID: "s-" + id, Status: jobs.StatusQueued, CreatedAt: now.Add(time.Duration(i) * time.Millisecond), UpdatedAt: now}
		if err := st.InsertJob(ctx, job); err != nil {
			t.Fatalf("InsertJob: %v", err)
		}
	}
	open, err := st.FindOpenJob(ctx, "s-j-1")
	if err != nil || open == nil || open.ID != "j-1" {
		t.Fatalf("FindOpenJob = %+v, %v", open, err)
	}

	claimed, err := st.ClaimNextJob(ctx)
	if err != nil || claimed == nil || claimed.ID != "j-1" || claimed.Attempts != 1 {
		t.Fatalf("ClaimNextJob = %+v, %v", claimed, err)
	}
	if deleted, err := st.DeleteQueuedJob(ctx, "j-1"); err != nil || deleted {
		t.Fatalf("active job must not be deletable: %v, %v", deleted, err)
	}
	if deleted, err := st.DeleteQueuedJob(ctx, "j-2"); err != nil || !deleted {
		t.Fatalf("queued job should be deletable: %v, %v", deleted, err)
	}

	reclaimed, err := st.ReclaimStaleJobs(ctx, time.Now().Add(time.Minute))
	if err != nil || reclaimed != 1 {
		t.Fatalf("ReclaimStaleJobs = %d, %v", reclaimed, err)
	}
	claimed, err = st.ClaimNextJob(ctx)
	if err != nil || claimed == nil || claimed.Attempts != 2 {
		t.Fatalf("reclaimed job not claimable: %+v, %v", claimed, err)
	}
	if err := st.UpdateJobProgress(ctx, "j-1", 40); err != nil {
		t.Fatalf("UpdateJobProgress: %v", err)
	}
	if err := st.FinishJob(ctx, "j-1", jobs.StatusCompleted, []byte(`{"status":"completed"}`), ""); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}
	job, err := st.GetJob(ctx, "j-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != jobs.StatusCompleted || job.Progress != 100 || string(job.Result) != `{"status":"completed"}` || job.FinishedAt == nil {
		t.Fatalf("unexpected finished job %+v", job)
	}
	if next, err := st.ClaimNextJob(ctx); err != nil || next != nil {
		t.Fatalf("expected empty queue, got %+v, %v", next, err)
	}
	counts, err := st.CountJobs(ctx)
	if err != nil || counts[jobs.StatusCompleted] != 1 {
		t.Fatalf("CountJobs = %v, %v", counts, err)
	}
}
