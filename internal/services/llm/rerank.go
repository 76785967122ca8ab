package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RerankPrompt instructs the model to score catalog candidates for one
// statement line.
const RerankPrompt = `You reconcile music royalty statement lines against a publisher catalog.
You receive one statement line and a list of candidate catalog works.
Score every candidate from 0 to 1 for how likely it is the same musical composition.
Consider title variants, translations, medley or live annotations, writer name spellings and initials.
Performers are not writers; do not penalize a cover recording.
Respond with JSON only: {"scores":[{"work_id":"...","score":0.0,"reason":"..."}]}.
Only use work_id values from the candidate list.`

// RerankQuery describes the statement line being matched.
type RerankQuery struct {
	Title     string `json:"title"`
	Writers   string `json:"writers,omitempty"`
	Performer string `json:"performer,omitempty"`
	ISRC      string `json:"isrc,omitempty"`
	ISWC      string `json:"iswc,omitempty"`
}

// RerankOption is one catalog candidate offered to the model.
type RerankOption struct {
	WorkID  string   `json:"work_id"`
	Title   string   `json:"title"`
	Writers []string `json:"writers,omitempty"`
	ISWC    string   `json:"iswc,omitempty"`
}

// RerankScore is the model's verdict for one candidate.
type RerankScore struct {
	WorkID string  `json:"work_id"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Rerank asks the model to score options for query. Scores for unknown work
// ids are dropped and the rest are clamped to [0,1].
func (c *Client) Rerank(ctx context.Context, query RerankQuery, options []RerankOption) ([]RerankScore, error) {
	if len(options) == 0 {
		return nil, nil
	}
	if strings.TrimSpace(query.Title) == "" {
		return nil, errors.New("llm rerank: query title required")
	}
	prompt, err := json.Marshal(struct {
		Line       RerankQuery    `json:"statement_line"`
		Candidates []RerankOption `json:"candidates"`
	}{query, options})
	if err != nil {
		return nil, fmt.Errorf("llm rerank: encode prompt: %w", err)
	}
	content, err := c.CompleteJSON(ctx, RerankPrompt, string(prompt))
	if err != nil {
		return nil, fmt.Errorf("llm rerank: %w", err)
	}
	var parsed struct {
		Scores []RerankScore `json:"scores"`
	}
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		return nil, fmt.Errorf("llm rerank: parse payload: %w", err)
	}

	known := make(map[string]bool, len(options))
	for _, option := range options {
		known[option.WorkID] = true
	}
	scores := make([]RerankScore, 0, len(parsed.Scores))
	seen := make(map[string]bool, len(parsed.Scores))
	for _, score := range parsed.Scores {
		score.WorkID = strings.TrimSpace(score.WorkID)
		if !known[score.WorkID] || seen[score.WorkID] {
			continue
		}
		seen[score.WorkID] = true
		score.Score = min(max(score.Score, 0), 1)
		score.Reason = strings.TrimSpace(score.Reason)
		scores = append(scores, score)
	}
	if len(scores) == 0 {
		return nil, errors.New("llm rerank: no usable scores in response")
	}
	return scores, nil
}
