package matching

import (
	"context"
	"testing"

	"royalties/internal/catalog"
	"royalties/internal/statement"
)

func TestFingerprintSourceFindsTokenNeighbour(t *testing.T) {
	snap := testSnapshot(t)
	source := NewFingerprintSource()
	candidates, err := source.Candidates(context.Background(), snap, newRow(1, "Let It Be Me", "Gilbert Becaud"), 3, 0.3)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) == 0 || candidates[0].WorkID != "w-cover" {
		t.Fatalf("expected w-cover first, got %+v", candidates)
	}
	if candidates[0].Method != statement.MethodSemantic {
		t.Fatalf("unexpected method %s", candidates[0].Method)
	}

	again, _ := source.Candidates(context.Background(), snap, newRow(2, "Let It Be Me", "Gilbert Becaud"), 3, 0.3)
	if len(again) != len(candidates) {
		t.Fatalf("cached index returned different results")
	}
}

type stubEmbedder struct{ vector []float32 }

func (s stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) { return s.vector, nil }

type stubProvider struct{ snap *catalog.Snapshot }

func (s stubProvider) Peek(string) (*catalog.Snapshot, bool) { return s.snap, s.snap != nil }

func TestEmbeddingSourceOverSnapshotIndex(t *testing.T) {
	snap := testSnapshot(t)
	source := NewEmbeddingSource(stubEmbedder{vector: []float32{0.9, 0.1, 0}}, NewSnapshotIndex(stubProvider{snap: snap}))
	candidates, err := source.Candidates(context.Background(), snap, newRow(1, "Help", ""), 5, 0.5)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].WorkID != "w-help" {
		t.Fatalf("expected only w-help above threshold, got %+v", candidates)
	}
}

func TestSnapshotIndexRequiresSnapshot(t *testing.T) {
	idx := NewSnapshotIndex(stubProvider{})
	if _, err := idx.NearestWorks(context.Background(), "tenant-x", []float32{1}, 1, 0); err == nil {
		t.Fatalf("expected error without snapshot")
	}
}
