package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"royalties/internal/catalog"
	"royalties/internal/services"
	"royalties/internal/statement"
	"royalties/internal/textutil"
)

// CandidateSource proposes works similar to a row.
type CandidateSource interface {
	Name() string
	Candidates(ctx context.Context, snap *catalog.Snapshot, row statement.Row, topK int, minSimilarity float64) ([]Candidate, error)
}

// Embedder turns query text into a vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Neighbor is a work returned by a vector search.
type Neighbor struct {
	WorkID     string
	Similarity float64
}

// VectorIndex answers nearest-neighbour queries over a tenant's works.
type VectorIndex interface {
	NearestWorks(ctx context.Context, tenantID string, vector []float32, topK int, minSimilarity float64) ([]Neighbor, error)
}

// QueryText is the text embedded for a row: title, writers, and performer.
func QueryText(row statement.Row) string {
	parts := []string{row.Title}
	if row.Writer != "" {
		parts = append(parts, row.Writer)
	}
	if row.Performer != "" {
		parts = append(parts, row.Performer)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// EmbeddingSource embeds the row and queries a VectorIndex.
type EmbeddingSource struct {
	embedder Embedder
	index    VectorIndex
}

// NewEmbeddingSource pairs an embedder with a vector index.
func NewEmbeddingSource(embedder Embedder, index VectorIndex) *EmbeddingSource {
	return &EmbeddingSource{embedder: embedder, index: index}
}

func (s *EmbeddingSource) Name() string { return "embedding" }

func (s *EmbeddingSource) Candidates(ctx context.Context, snap *catalog.Snapshot, row statement.Row, topK int, minSimilarity float64) ([]Candidate, error) {
	text := QueryText(row)
	if text == "" {
		return nil, nil
	}
	vector, err := s.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, StageSemantic, "embed row", "", err)
	}
	neighbors, err := s.index.NearestWorks(ctx, snap.TenantID, vector, topK, minSimilarity)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, StageSemantic, "nearest works", "", err)
	}
	out := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		work, ok := snap.WorkByID(n.WorkID)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			WorkID:   work.ID,
			Title:    work.Title,
			Score:    n.Similarity,
			Method:   statement.MethodSemantic,
			Evidence: []string{fmt.Sprintf("embedding %.2f", n.Similarity)},
		})
	}
	return out, nil
}

// SnapshotProvider exposes cached snapshots by tenant.
type SnapshotProvider interface {
	Peek(tenantID string) (*catalog.Snapshot, bool)
}

// SnapshotIndex is a brute-force VectorIndex over the embeddings stored on
// cached catalog works.
type SnapshotIndex struct {
	snapshots SnapshotProvider
}

// NewSnapshotIndex builds an index reading vectors from provider.
func NewSnapshotIndex(provider SnapshotProvider) *SnapshotIndex {
	return &SnapshotIndex{snapshots: provider}
}

func (idx *SnapshotIndex) NearestWorks(ctx context.Context, tenantID string, vector []float32, topK int, minSimilarity float64) ([]Neighbor, error) {
	snap, ok := idx.snapshots.Peek(tenantID)
	if !ok {
		return nil, errors.New("no catalog snapshot for tenant " + tenantID)
	}
	var out []Neighbor
	for _, work := range snap.Works() {
		if len(work.Embedding) == 0 {
			continue
		}
		if sim := textutil.VectorCosine(vector, work.Embedding); sim >= minSimilarity {
			out = append(out, Neighbor{WorkID: work.ID, Similarity: sim})
		}
	}
	return topNeighbors(out, topK), ctx.Err()
}

// FingerprintSource finds neighbours by TF-IDF token fingerprints built from
// each work's title, alternate titles, and writers. It needs no external
// service.
type FingerprintSource struct {
	mu      sync.Mutex
	indexes map[string]*fingerprintIndex
}

type fingerprintIndex struct {
	snap  *catalog.Snapshot
	idf   map[string]float64
	works []fingerprintEntry
}

type fingerprintEntry struct {
	work *catalog.Work
	fp   *textutil.Fingerprint
}

// NewFingerprintSource constructs an empty source; indexes are built lazily
// per snapshot.
func NewFingerprintSource() *FingerprintSource {
	return &FingerprintSource{indexes: make(map[string]*fingerprintIndex)}
}

func (s *FingerprintSource) Name() string { return "fingerprint" }

func (s *FingerprintSource) Candidates(ctx context.Context, snap *catalog.Snapshot, row statement.Row, topK int, minSimilarity float64) ([]Candidate, error) {
	idx := s.indexFor(snap)
	query := textutil.NewFingerprint(QueryText(row)).WithIDF(idx.idf)
	if query == nil {
		return nil, nil
	}
	var neighbors []Neighbor
	for _, entry := range idx.works {
		if sim := textutil.CosineSimilarity(query, entry.fp); sim >= minSimilarity {
			neighbors = append(neighbors, Neighbor{WorkID: entry.work.ID, Similarity: sim})
		}
	}
	neighbors = topNeighbors(neighbors, topK)
	out := make([]Candidate, 0, len(neighbors))
	for _, n := range neighbors {
		work, _ := snap.WorkByID(n.WorkID)
		out = append(out, Candidate{
			WorkID:   work.ID,
			Title:    work.Title,
			Score:    n.Similarity,
			Method:   statement.MethodSemantic,
			Evidence: []string{fmt.Sprintf("fingerprint %.2f", n.Similarity)},
		})
	}
	return out, ctx.Err()
}

func (s *FingerprintSource) indexFor(snap *catalog.Snapshot) *fingerprintIndex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.indexes[snap.TenantID]; ok && idx.snap == snap {
		return idx
	}
	corpus := textutil.NewCorpus()
	raw := make([]*textutil.Fingerprint, len(snap.Works()))
	for i, work := range snap.Works() {
		raw[i] = textutil.NewFingerprint(work.SearchText())
		corpus.Add(raw[i])
	}
	idx := &fingerprintIndex{snap: snap, idf: corpus.IDF()}
	for i, work := range snap.Works() {
		if fp := raw[i].WithIDF(idx.idf); fp != nil {
			idx.works = append(idx.works, fingerprintEntry{work: work, fp: fp})
		}
	}
	s.indexes[snap.TenantID] = idx
	return idx
}

func topNeighbors(neighbors []Neighbor, topK int) []Neighbor {
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].WorkID < neighbors[j].WorkID
	})
	if topK > 0 && len(neighbors) > topK {
		neighbors = neighbors[:topK]
	}
	return neighbors
}

// mergeCandidates combines candidate lists by work id, keeping the highest
// score (and its method) and concatenating evidence.
func mergeCandidates(lists ...[]Candidate) []Candidate {
	index := make(map[string]int)
	var out []Candidate
	for _, list := range lists {
		for _, c := range list {
			pos, ok := index[c.WorkID]
			if !ok {
				index[c.WorkID] = len(out)
				c.Evidence = append([]string(nil), c.Evidence...)
				out = append(out, c)
				continue
			}
			existing := &out[pos]
			existing.Evidence = append(existing.Evidence, c.Evidence...)
			if c.Score > existing.Score {
				existing.Score = c.Score
				existing.Method = c.Method
			}
		}
	}
	sortCandidates(out)
	return out
}

func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].WorkID < candidates[j].WorkID
	})
}
