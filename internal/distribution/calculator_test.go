package distribution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"royalties/internal/catalog"
	"royalties/internal/statement"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testSnapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	works := []catalog.Work{
		{
			ID:    "w-full",
			Title: "Yesterday",
			Writers: []catalog.Writer{
				{ID: "wr-a", Name: "Writer A", Share: dec("50")},
				{ID: "wr-b", Name: "Writer B", Share: dec("25")},
			},
			Publishers: []catalog.Publisher{{ID: "pub-1", Name: "Publisher One", Share: dec("25")}},
		},
		{
			ID:    "w-thirds",
			Title: "Thirds",
			Writers: []catalog.Writer{
				{ID: "wr-a", Name: "Writer A", Share: dec("33.33")},
				{ID: "wr-b", Name: "Writer B", Share: dec("33.33")},
				{ID: "wr-c", Name: "Writer C", Share: dec("33.34")},
			},
		},
		{
			ID:      "w-under",
			Title:   "Under",
			Writers: []catalog.Writer{{ID: "wr-a", Name: "Writer A", Share: dec("60")}},
		},
		{
			ID:    "w-over",
			Title: "Over",
			Writers: []catalog.Writer{
				{ID: "wr-a", Name: "Writer A", Share: dec("70")},
				{ID: "wr-b", Name: "Writer B", Share: dec("50")},
			},
		},
		{
			ID:    "w-sync",
			Title: "Sync Split",
			Writers: []catalog.Writer{
				{ID: "wr-a", Name: "Writer A", Share: dec("50"), RightShares: map[string]decimal.Decimal{statement.RightSync: dec("100")}},
				{ID: "wr-b", Name: "Writer B", Share: dec("50"), RightShares: map[string]decimal.Decimal{statement.RightSync: dec("0")}},
			},
		},
	}
	snap, err := catalog.NewSnapshot("tenant-a", works, time.Unix(0, 0), decimal.NewFromFloat(0.01))
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return snap
}

func newTestCalculator() *Calculator {
	seq := 0
	return NewCalculator(
		WithClock(func() time.Time { return time.Unix(1700000000, 0) }),
		WithIDGenerator(func() string { seq++; return fmt.Sprintf("d-%d", seq) }),
	)
}

func row(n int, amount string, status statement.MatchStatus, workID string) statement.Row {
	return statement.Row{
		RowNumber:     n,
		Amount:        dec(amount),
		Currency:      "USD",
		Territory:     "US",
		Period:        "2024-Q1",
		RightType:     statement.RightPerformance,
		MatchStatus:   status,
		MatchedWorkID: workID,
	}
}

func TestCalculateConservesGross(t *testing.T) {
	rows := make([]statement.Row, 0, 100)
	for i := 1; i <= 100; i++ {
		if i <= 60 {
			rows = append(rows, row(i, "100.00", statement.MatchExact, "w-full"))
		} else {
			rows = append(rows, row(i, "100.00", statement.MatchNone, ""))
		}
	}
	stmt := statement.Statement{ID: "s-1", TenantID: "tenant-a", Currency: "USD"}

	result, err := newTestCalculator().Calculate(context.Background(), stmt, rows, testSnapshot(t))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	s := result.Summary
	if !s.TotalGross.Equal(dec("10000")) {
		t.Fatalf("gross = %s", s.TotalGross)
	}
	if !s.TotalDistributed.Equal(dec("6000")) || !s.TotalUndistributed.Equal(dec("4000")) {
		t.Fatalf("distributed %s undistributed %s", s.TotalDistributed, s.TotalUndistributed)
	}
	if s.MatchRate != 0.6 || s.MatchedRows != 60 || s.TotalRows != 100 {
		t.Fatalf("match rate %v (%d/%d)", s.MatchRate, s.MatchedRows, s.TotalRows)
	}
	if len(result.Distributions) != 3 {
		t.Fatalf("expected 3 distributions, got %d", len(result.Distributions))
	}
	first := result.Distributions[0]
	if first.WriterID != "wr-a" || !first.Net.Equal(dec("3000")) || first.PublisherID != "" {
		t.Fatalf("unexpected first distribution %+v", first)
	}
	if first.Territory != "US" || first.Period != "2024-Q1" || len(first.RowNumbers) != 60 {
		t.Fatalf("expected common territory/period and 60 rows, got %+v", first)
	}
	if len(s.ByWriter) != 2 || s.ByWriter[0].ID != "wr-a" || !s.ByWriter[0].Percentage.Equal(dec("50")) {
		t.Fatalf("unexpected writer ranking %+v", s.ByWriter)
	}
	if len(s.ByPublisher) != 1 || !s.ByPublisher[0].Amount.Equal(dec("1500")) {
		t.Fatalf("unexpected publisher totals %+v", s.ByPublisher)
	}
	perf := s.ByRightType[statement.RightPerformance]
	if !perf.Amount.Equal(dec("6000")) || !perf.Percentage.Equal(dec("100")) {
		t.Fatalf("unexpected right type totals %+v", perf)
	}
}

func TestCalculateAssignsRoundingResidualToLargestShare(t *testing.T) {
	rows := []statement.Row{row(1, "10.00", statement.MatchManual, "w-thirds")}
	result, err := newTestCalculator().Calculate(context.Background(), statement.Statement{ID: "s-1"}, rows, testSnapshot(t))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	nets := map[string]string{}
	for _, d := range result.Distributions {
		nets[d.WriterID] = d.Net.StringFixed(2)
	}
	if nets["wr-a"] != "3.33" || nets["wr-b"] != "3.33" || nets["wr-c"] != "3.34" {
		t.Fatalf("unexpected nets %v", nets)
	}
	if len(result.Summary.Adjustments) != 1 || result.Summary.Adjustments[0].PartyID != "wr-c" {
		t.Fatalf("expected one adjustment on wr-c, got %+v", result.Summary.Adjustments)
	}
	if !result.Summary.TotalUndistributed.IsZero() {
		t.Fatalf("expected nothing undistributed, got %s", result.Summary.TotalUndistributed)
	}
}

func TestCalculateKeepsSubCentGrossUndistributed(t *testing.T) {
	rows := []statement.Row{
		row(1, "0.00347", statement.MatchExact, "w-thirds"),
		row(2, "10.001", statement.MatchExact, "w-thirds"),
	}
	result, err := newTestCalculator().Calculate(context.Background(), statement.Statement{ID: "s-1"}, rows, testSnapshot(t))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	nets := map[string]decimal.Decimal{}
	for _, d := range result.Distributions {
		if !d.Net.Equal(d.Net.Round(2)) {
			t.Fatalf("net for %s carries sub-cent digits: %s", d.WriterID, d.Net)
		}
		nets[d.WriterID] = d.Net
	}
	if !nets["wr-c"].Equal(dec("3.34")) || !nets["wr-a"].Equal(dec("3.33")) {
		t.Fatalf("unexpected nets %v", nets)
	}
	s := result.Summary
	if !s.TotalDistributed.Equal(dec("10.00")) || !s.TotalUndistributed.Equal(dec("0.00447")) {
		t.Fatalf("distributed %s undistributed %s", s.TotalDistributed, s.TotalUndistributed)
	}
	if len(s.Adjustments) != 1 || !s.Adjustments[0].Amount.Equal(dec("0.01")) {
		t.Fatalf("expected a one-cent adjustment, got %+v", s.Adjustments)
	}
}

func TestCalculateShareMismatches(t *testing.T) {
	tests := []struct {
		name          string
		workID        string
		distributed   string
		undistributed string
		warning       string
	}{
		{name: "under allocated", workID: "w-under", distributed: "30", undistributed: "20", warning: "remainder"},
		{name: "over allocated", workID: "w-over", distributed: "0", undistributed: "50", warning: "over-allocated"},
		{name: "missing work", workID: "w-missing", distributed: "0", undistributed: "50", warning: "not in catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := []statement.Row{row(1, "50.00", statement.MatchFuzzyHigh, tt.workID)}
			result, err := newTestCalculator().Calculate(context.Background(), statement.Statement{ID: "s-1"}, rows, testSnapshot(t))
			if err != nil {
				t.Fatalf("Calculate: %v", err)
			}
			s := result.Summary
			if !s.TotalDistributed.Equal(dec(tt.distributed)) || !s.TotalUndistributed.Equal(dec(tt.undistributed)) {
				t.Fatalf("distributed %s undistributed %s", s.TotalDistributed, s.TotalUndistributed)
			}
			if len(s.Warnings) != 1 || !strings.Contains(s.Warnings[0], tt.warning) {
				t.Fatalf("expected warning containing %q, got %v", tt.warning, s.Warnings)
			}
		})
	}
}

func TestCalculateHonorsRightTypeOverrides(t *testing.T) {
	sync := row(1, "80.00", statement.MatchExact, "w-sync")
	sync.RightType = statement.RightSync
	perf := row(2, "20.00", statement.MatchExact, "w-sync")

	result, err := newTestCalculator().Calculate(context.Background(), statement.Statement{ID: "s-1"}, []statement.Row{sync, perf}, testSnapshot(t))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if len(result.Distributions) != 3 {
		t.Fatalf("expected 3 distributions, got %+v", result.Distributions)
	}
	byRight := result.Summary.ByRightType
	if !byRight[statement.RightSync].Amount.Equal(dec("80")) || !byRight[statement.RightSync].Percentage.Equal(dec("80")) {
		t.Fatalf("unexpected sync totals %+v", byRight[statement.RightSync])
	}
	if got := result.Summary.ByWriter[0]; got.ID != "wr-a" || !got.Amount.Equal(dec("90")) {
		t.Fatalf("unexpected top writer %+v", got)
	}
}

func TestCalculateDropsMixedTerritory(t *testing.T) {
	a := row(1, "10.00", statement.MatchExact, "w-full")
	b := row(2, "10.00", statement.MatchExact, "w-full")
	b.Territory = "GB"
	result, err := newTestCalculator().Calculate(context.Background(), statement.Statement{ID: "s-1"}, []statement.Row{a, b}, testSnapshot(t))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	for _, d := range result.Distributions {
		if d.Territory != "" || d.Period != "2024-Q1" {
			t.Fatalf("expected blank territory and common period, got %+v", d)
		}
	}
}

func TestCalculateRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rows := []statement.Row{row(1, "10.00", statement.MatchExact, "w-full")}
	_, err := newTestCalculator().Calculate(ctx, statement.Statement{ID: "s-1"}, rows, testSnapshot(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type memoryRepo struct {
	stored  []Distribution
	summary *Summary
	paid    []string
}

func (m *memoryRepo) ReplaceDistributions(_ context.Context, _ string, d []Distribution, s Summary) error {
	m.stored, m.summary = d, &s
	return nil
}

func (m *memoryRepo) ListDistributions(context.Context, Filter) ([]Distribution, error) {
	return m.stored, nil
}

func (m *memoryRepo) GetDistributionSummary(context.Context, string) (*Summary, error) {
	return m.summary, nil
}

func (m *memoryRepo) MarkDistributionsPaid(_ context.Context, ids []string, _ time.Time) (int, error) {
	m.paid = append(m.paid, ids...)
	return len(ids), nil
}

func TestServiceDistributePersists(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(newTestCalculator(), repo)
	rows := []statement.Row{row(1, "10.00", statement.MatchExact, "w-full")}
	summary, err := svc.Distribute(context.Background(), statement.Statement{ID: "s-1"}, rows, testSnapshot(t))
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}
	if len(repo.stored) != 3 || repo.summary == nil || !summary.TotalDistributed.Equal(dec("10")) {
		t.Fatalf("expected persisted run, got %d rows summary=%+v", len(repo.stored), repo.summary)
	}
	if _, err := svc.MarkPaid(context.Background(), nil); err == nil {
		t.Fatalf("expected validation error for empty id list")
	}
	if n, err := svc.MarkPaid(context.Background(), []string{"d-1"}); err != nil || n != 1 {
		t.Fatalf("MarkPaid = %d, %v", n, err)
	}
}
