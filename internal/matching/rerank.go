package matching

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"royalties/internal/catalog"
	"royalties/internal/services/llm"
	"royalties/internal/statement"
)

// RerankCandidate is a candidate enriched with catalog detail for a reranker.
type RerankCandidate struct {
	WorkID  string
	Title   string
	Writers []string
	ISWC    string
	Score   float64
}

// RerankScore is a reranker's score for one work.
type RerankScore struct {
	WorkID string
	Score  float64
	Reason string
}

// Reranker rescores the top candidates for a row.
type Reranker interface {
	Rerank(ctx context.Context, row statement.Row, candidates []RerankCandidate) ([]RerankScore, error)
}

func rerankInputs(snap *catalog.Snapshot, candidates []Candidate) []RerankCandidate {
	out := make([]RerankCandidate, 0, len(candidates))
	for _, c := range candidates {
		rc := RerankCandidate{WorkID: c.WorkID, Title: c.Title, Score: c.Score}
		if work, ok := snap.WorkByID(c.WorkID); ok {
			rc.ISWC = work.ISWC
			for _, writer := range work.Writers {
				rc.Writers = append(rc.Writers, writer.Name)
			}
		}
		out = append(out, rc)
	}
	return out
}

// blendScores mixes reranker scores into candidates:
// priorWeight*prior + (1-priorWeight)*reranker. Candidates the reranker did
// not score keep their prior score.
func blendScores(candidates []Candidate, scores []RerankScore, priorWeight float64) []Candidate {
	byID := make(map[string]RerankScore, len(scores))
	for _, s := range scores {
		byID[s.WorkID] = s
	}
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.Evidence = append([]string(nil), c.Evidence...)
		if s, ok := byID[c.WorkID]; ok {
			c.Score = priorWeight*c.Score + (1-priorWeight)*s.Score
			c.Method = statement.MethodRerank
			evidence := fmt.Sprintf("rerank %.2f", s.Score)
			if s.Reason != "" {
				evidence += ": " + s.Reason
			}
			c.Evidence = append(c.Evidence, evidence)
		}
		out[i] = c
	}
	sortCandidates(out)
	return out
}

// LLMReranker asks a chat model to score candidates. Requests pass through a
// token bucket limiter.
type LLMReranker struct {
	client  *llm.Client
	limiter *rate.Limiter
}

// NewLLMReranker wraps client. requestsPerSecond <= 0 disables throttling.
func NewLLMReranker(client *llm.Client, requestsPerSecond float64) *LLMReranker {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &LLMReranker{client: client, limiter: rate.NewLimiter(limit, 1)}
}

func (r *LLMReranker) Rerank(ctx context.Context, row statement.Row, candidates []RerankCandidate) ([]RerankScore, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	query := llm.RerankQuery{
		Title:     row.Title,
		Writers:   row.Writer,
		Performer: row.Performer,
		ISRC:      row.NormalizedISRC,
		ISWC:      row.NormalizedISWC,
	}
	options := make([]llm.RerankOption, 0, len(candidates))
	for _, c := range candidates {
		options = append(options, llm.RerankOption{
			WorkID:  c.WorkID,
			Title:   c.Title,
			Writers: c.Writers,
			ISWC:    c.ISWC,
		})
	}
	scores, err := r.client.Rerank(ctx, query, options)
	if err != nil {
		return nil, err
	}
	out := make([]RerankScore, 0, len(scores))
	for _, s := range scores {
		out = append(out, RerankScore{WorkID: s.WorkID, Score: s.Score, Reason: strings.TrimSpace(s.Reason)})
	}
	return out, nil
}
