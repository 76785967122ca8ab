package matching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"royalties/internal/catalog"
	"royalties/internal/logging"
	"royalties/internal/services"
	"royalties/internal/statement"
)

// Engine matches rows against a catalog snapshot.
type Engine struct {
	policy   Policy
	sources  []CandidateSource
	reranker Reranker
	logger   *slog.Logger
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCandidateSource adds a semantic candidate source.
func WithCandidateSource(source CandidateSource) Option {
	return func(e *Engine) {
		if source != nil {
			e.sources = append(e.sources, source)
		}
	}
}

// WithReranker enables the rerank stage.
func WithReranker(reranker Reranker) Option {
	return func(e *Engine) { e.reranker = reranker }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.NewComponentLogger(logger, "matching") }
}

// WithClock overrides the time source used for elapsed timings.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine constructs an engine for policy.
func NewEngine(policy Policy, opts ...Option) *Engine {
	e := &Engine{
		policy: policy,
		logger: logging.NewComponentLogger(nil, "matching"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's thresholds.
func (e *Engine) Policy() Policy { return e.policy }

// Match runs every stage for row. It never fails: collaborator errors are
// logged, recorded as failed StageOutcomes, and the remaining stages proceed.
func (e *Engine) Match(ctx context.Context, snap *catalog.Snapshot, row statement.Row) Result {
	started := e.now()
	result := Result{RowNumber: row.RowNumber}

	stageStart := e.now()
	exact, found, warnings := matchExact(snap, row)
	result.Warnings = append(result.Warnings, warnings...)
	if found {
		result.Stages = append(result.Stages, StageOutcome{Stage: StageExact, State: StageOK, Candidates: 1, Duration: e.now().Sub(stageStart)})
		result.Candidates = []Candidate{exact}
		return e.finish(snap, result, started)
	}
	result.Stages = append(result.Stages, StageOutcome{Stage: StageExact, State: StageSkipped, Detail: "no identifier match", Duration: e.now().Sub(stageStart)})

	stageStart = e.now()
	candidates := scoreFuzzy(snap, row, e.policy)
	fuzzyOutcome := StageOutcome{Stage: StageFuzzy, State: StageOK, Candidates: len(candidates)}
	if row.NormalizedTitle == "" {
		fuzzyOutcome.State, fuzzyOutcome.Detail = StageSkipped, "row has no title"
	}
	fuzzyOutcome.Duration = e.now().Sub(stageStart)
	result.Stages = append(result.Stages, fuzzyOutcome)
	candidates = mergeCandidates(candidates)

	if len(e.sources) > 0 {
		if topScore(candidates) >= e.policy.AutoMatch {
			result.Stages = append(result.Stages, StageOutcome{Stage: StageSemantic, State: StageSkipped, Detail: "fuzzy score already conclusive"})
		} else {
			lists := [][]Candidate{candidates}
			for _, source := range e.sources {
				stageStart = e.now()
				found, err := source.Candidates(ctx, snap, row, e.policy.SemanticTopK, e.policy.SemanticMinSimilarity)
				outcome := StageOutcome{Stage: StageSemantic, Source: source.Name(), State: StageOK, Candidates: len(found)}
				if err != nil {
					outcome.State, outcome.Err, outcome.Detail = StageFailed, err, err.Error()
					e.stageFailed(ctx, row, StageSemantic, err)
				} else {
					lists = append(lists, found)
				}
				outcome.Duration = e.now().Sub(stageStart)
				result.Stages = append(result.Stages, outcome)
			}
			candidates = mergeCandidates(lists...)
		}
	}

	candidates = aboveMinimum(candidates, e.policy.Minimum)

	if e.reranker != nil {
		result.Stages = append(result.Stages, e.rerank(ctx, snap, row, &candidates))
	}

	if limit := e.policy.MaxCandidates; limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	result.Candidates = candidates
	return e.finish(snap, result, started)
}

func (e *Engine) rerank(ctx context.Context, snap *catalog.Snapshot, row statement.Row, candidates *[]Candidate) StageOutcome {
	outcome := StageOutcome{Stage: StageRerank}
	switch {
	case len(*candidates) == 0:
		outcome.State, outcome.Detail = StageSkipped, "no candidates"
		return outcome
	case len(*candidates) == 1:
		// A lone candidate has nothing to be ranked against; it stays with review.
		outcome.State, outcome.Detail = StageSkipped, "single candidate"
		return outcome
	case topScore(*candidates) >= e.policy.AutoMatch:
		outcome.State, outcome.Detail = StageSkipped, "top candidate already conclusive"
		return outcome
	}
	started := e.now()
	top := *candidates
	if k := e.policy.RerankTopK; k > 0 && len(top) > k {
		top = top[:k]
	}
	scores, err := e.reranker.Rerank(ctx, row, rerankInputs(snap, top))
	outcome.Duration = e.now().Sub(started)
	if err != nil {
		err = services.Wrap(services.ErrTransient, StageRerank, "rerank candidates", "", err)
		outcome.State, outcome.Err, outcome.Detail = StageFailed, err, "kept prior order: "+err.Error()
		e.stageFailed(ctx, row, StageRerank, err)
		return outcome
	}
	rest := (*candidates)[len(top):]
	blended := blendScores(top, scores, e.policy.RerankPriorWeight)
	merged := append(blended, rest...)
	sortCandidates(merged)
	*candidates = aboveMinimum(merged, e.policy.Minimum)
	outcome.State = StageOK
	outcome.Candidates = len(scores)
	return outcome
}

func (e *Engine) finish(snap *catalog.Snapshot, result Result, started time.Time) Result {
	if len(result.Candidates) == 0 {
		result.Status = statement.MatchNone
		result.Confidence = 0
	} else {
		top := result.Candidates[0]
		result.WorkID = top.WorkID
		result.Method = top.Method
		result.Confidence = top.Score
		if top.Method == statement.MethodISWC || top.Method == statement.MethodISRC || top.Method == statement.MethodWorkCode {
			result.Status = statement.MatchExact
			result.Confidence = 1
		} else {
			result.Status = e.policy.StatusFor(top.Score)
		}
		for _, issue := range snap.Issues(top.WorkID) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("work %s: %s", top.WorkID, issue))
		}
	}
	if result.Status == statement.MatchNone {
		result.WorkID = ""
		result.Method = statement.MethodNone
	}
	result.Recommendation = e.policy.RecommendationFor(result.Status)
	result.Elapsed = e.now().Sub(started)
	return result
}

func (e *Engine) stageFailed(ctx context.Context, row statement.Row, stage string, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, e.logger), "matching stage failed; continuing without it", "match_stage_failed",
		logging.Int(logging.FieldRowNumber, row.RowNumber),
		logging.String(logging.FieldStage, stage),
		logging.String(logging.FieldImpact, "row scored without "+stage+" evidence"),
		logging.Error(err),
	)
}

func topScore(candidates []Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	return candidates[0].Score
}

func aboveMinimum(candidates []Candidate, minimum float64) []Candidate {
	out := candidates[:0]
	for _, c := range candidates {
		if c.Score >= minimum {
			out = append(out, c)
		}
	}
	return out
}
