package catalog

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func pct(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func sampleWorks() []Work {
	return []Work{
		{
			ID:    "w-1",
			Code:  " ab-100 ",
			Title: "Yesterday",
			ISWC:  "T-070.019.034-4",
			Writers: []Writer{
				{ID: "p-1", Name: "John Lennon", Share: pct(50)},
				{ID: "p-2", Name: "Paul McCartney", Share: pct(50)},
			},
			Recordings: []Recording{{ISRC: "gb-aye-65-00001"}},
		},
		{
			ID:    "w-2",
			Title: "Let It Be",
			ISWC:  "T0700190355",
			Writers: []Writer{
				{ID: "p-2", Name: "Paul McCartney", Share: pct(40)},
			},
			Publishers: []Publisher{{ID: "pub-1", Name: "Northern Songs", Share: pct(40)}},
			Recordings: []Recording{{ISRC: "GBAYE6500001"}},
		},
	}
}

func TestNewSnapshotIndexesWorks(t *testing.T) {
	snap, err := NewSnapshot("tenant-a", sampleWorks(), time.Unix(0, 0), decimal.NewFromFloat(0.01))
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("expected 2 works, got %d", snap.Len())
	}
	work, ok := snap.WorkByISWC("T0700190344")
	if !ok || work.ID != "w-1" {
		t.Fatalf("expected ISWC lookup to find w-1, got %+v", work)
	}
	if work.NormalizedTitle != "yesterday" {
		t.Fatalf("unexpected normalized title %q", work.NormalizedTitle)
	}
	if _, ok := snap.WorkByCode("AB-100"); !ok {
		t.Fatalf("expected work code lookup to succeed")
	}
	if got := snap.WorksByISRC("GBAYE6500001"); len(got) != 2 {
		t.Fatalf("expected shared ISRC to map to 2 works, got %d", len(got))
	}
}

func TestNewSnapshotRecordsShareIssues(t *testing.T) {
	snap, err := NewSnapshot("tenant-a", sampleWorks(), time.Unix(0, 0), decimal.NewFromFloat(0.01))
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	if issues := snap.Issues("w-1"); len(issues) != 0 {
		t.Fatalf("expected no issues for w-1, got %v", issues)
	}
	issues := snap.Issues("w-2")
	if len(issues) != 1 || !strings.Contains(issues[0], "80") {
		t.Fatalf("expected under-allocation issue for w-2, got %v", issues)
	}
	if snap.IssueCount() != 1 {
		t.Fatalf("expected 1 work with issues, got %d", snap.IssueCount())
	}
}

func TestNewSnapshotDropsDuplicateISWC(t *testing.T) {
	works := sampleWorks()
	works[1].ISWC = works[0].ISWC
	snap, err := NewSnapshot("tenant-a", works, time.Unix(0, 0), decimal.Zero)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	if _, ok := snap.WorkByISWC("T0700190344"); ok {
		t.Fatalf("expected duplicated ISWC to be removed from the index")
	}
	if len(snap.Issues("w-1")) == 0 {
		t.Fatalf("expected both works to record the ISWC conflict")
	}
}

func TestNewSnapshotFlagsBothHoldersOfDuplicateCode(t *testing.T) {
	works := sampleWorks()
	works[1].Code = "AB-100"
	snap, err := NewSnapshot("tenant-a", works, time.Unix(0, 0), decimal.Zero)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	if _, ok := snap.WorkByCode("AB-100"); ok {
		t.Fatalf("expected duplicated work code to be removed from the index")
	}
	for _, id := range []string{"w-1", "w-2"} {
		if !strings.Contains(strings.Join(snap.Issues(id), "; "), "work code") {
			t.Fatalf("expected %s to record the work code conflict, got %v", id, snap.Issues(id))
		}
	}
}

func TestNewSnapshotRejectsDuplicateIDs(t *testing.T) {
	works := sampleWorks()
	works[1].ID = "w-1"
	if _, err := NewSnapshot("tenant-a", works, time.Unix(0, 0), decimal.Zero); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestNewSnapshotDoesNotAliasInput(t *testing.T) {
	works := sampleWorks()
	snap, err := NewSnapshot("tenant-a", works, time.Unix(0, 0), decimal.Zero)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	works[0].Writers[0].Name = "Someone Else"
	work, _ := snap.WorkByID("w-1")
	if work.Writers[0].Name != "John Lennon" {
		t.Fatalf("snapshot shares writer slice with caller")
	}
}

func TestRightShareOverrides(t *testing.T) {
	work := Work{
		ID:    "w-3",
		Title: "Sync Piece",
		Writers: []Writer{{
			Name:        "A Writer",
			Share:       pct(100),
			RightShares: map[string]decimal.Decimal{"sync": pct(50)},
		}},
		Publishers: []Publisher{{
			Name:        "A Publisher",
			Share:       pct(0),
			RightShares: map[string]decimal.Decimal{"sync": pct(50)},
		}},
	}
	if got := work.ShareTotal("performance"); !got.Equal(pct(100)) {
		t.Fatalf("performance total = %s", got)
	}
	if got := work.ShareTotal("sync"); !got.Equal(pct(100)) {
		t.Fatalf("sync total = %s", got)
	}
	snap, err := NewSnapshot("tenant-a", []Work{work}, time.Unix(0, 0), decimal.Zero)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	if snap.IssueCount() != 0 {
		t.Fatalf("expected no issues, got %v", snap.Issues("w-3"))
	}
}

func TestSnapshotExpired(t *testing.T) {
	loaded := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	snap := &Snapshot{LoadedAt: loaded}
	if snap.Expired(loaded.Add(29*time.Minute), 30*time.Minute) {
		t.Fatalf("snapshot should still be fresh")
	}
	if !snap.Expired(loaded.Add(30*time.Minute), 30*time.Minute) {
		t.Fatalf("snapshot should be expired")
	}
}
