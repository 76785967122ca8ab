package matching

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"royalties/internal/catalog"
	"royalties/internal/statement"
)

func testSnapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	hundred := decimal.NewFromInt(100)
	half := decimal.NewFromInt(50)
	works := []catalog.Work{
		{
			ID:    "w-yesterday",
			Title: "Yesterday",
			ISWC:  "T0700190344",
			Writers: []catalog.Writer{
				{ID: "p-lennon", Name: "John Lennon", Share: half},
				{ID: "p-mccartney", Name: "Paul McCartney", Share: half},
			},
			Recordings: []catalog.Recording{{ISRC: "GBAYE6500001"}},
			Embedding:  []float32{0, 1, 0},
		},
		{
			ID:         "w-letitbe",
			Title:      "Let It Be",
			ISWC:       "T0700190355",
			Writers:    []catalog.Writer{{ID: "p-mccartney", Name: "Paul McCartney", Share: hundred}},
			Recordings: []catalog.Recording{{ISRC: "USAAA0000001"}},
		},
		{
			ID:         "w-cover",
			Code:       "LIBM-1",
			Title:      "Let It Be Me",
			Writers:    []catalog.Writer{{ID: "p-becaud", Name: "Gilbert Becaud", Share: hundred}},
			Recordings: []catalog.Recording{{ISRC: "USAAA0000001"}},
		},
		{
			ID:        "w-help",
			Code:      "HLP-1",
			Title:     "Help!",
			Writers:   []catalog.Writer{{ID: "p-lennon", Name: "John Lennon", Share: decimal.NewFromInt(60)}},
			Embedding: []float32{1, 0, 0},
		},
	}
	snap, err := catalog.NewSnapshot("tenant-a", works, time.Unix(0, 0), decimal.NewFromFloat(0.01))
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return snap
}

func newRow(number int, title, writer string) statement.Row {
	row := statement.Row{RowNumber: number, Title: title, Writer: writer}
	statement.NormalizeRow(&row)
	return row
}

func TestExactPrecedence(t *testing.T) {
	snap := testSnapshot(t)
	source := &countingSource{stubSource: stubSource{name: "vec", candidates: []Candidate{{WorkID: "w-help", Score: 0.9}}}}
	reranker := &stubReranker{}
	engine := NewEngine(DefaultPolicy(), WithCandidateSource(source), WithReranker(reranker))

	row := newRow(1, "Something Else", "")
	row.ISWC, row.ISRC, row.WorkCode = "T-070.019.034-4", "USAAA0000001", "HLP-1"
	statement.NormalizeRow(&row)

	result := engine.Match(context.Background(), snap, row)
	if result.Status != statement.MatchExact || result.WorkID != "w-yesterday" || result.Method != statement.MethodISWC {
		t.Fatalf("expected ISWC exact match, got %+v", result)
	}
	if result.Confidence != 1 || result.Recommendation != RecommendAutoMatch {
		t.Fatalf("unexpected confidence/recommendation %+v", result)
	}
	if len(result.Stages) != 1 || result.Stages[0].Stage != StageExact {
		t.Fatalf("exact match should end the pipeline, got stages %+v", result.Stages)
	}

	row.ISWC = ""
	row.ISRC = "GB-AYE-65-00001"
	statement.NormalizeRow(&row)
	result = engine.Match(context.Background(), snap, row)
	if result.Method != statement.MethodISRC || result.WorkID != "w-yesterday" {
		t.Fatalf("expected unique ISRC match, got %+v", result)
	}

	row.ISRC = ""
	statement.NormalizeRow(&row)
	result = engine.Match(context.Background(), snap, row)
	if result.Method != statement.MethodWorkCode || result.WorkID != "w-help" {
		t.Fatalf("expected work code match, got %+v", result)
	}
	if source.calls != 0 || reranker.calls != 0 {
		t.Fatalf("later stages ran after exact matches: semantic=%d rerank=%d", source.calls, reranker.calls)
	}
}

func TestAmbiguousISRCNeverAutoResolves(t *testing.T) {
	snap := testSnapshot(t)
	engine := NewEngine(DefaultPolicy())

	row := newRow(2, "", "")
	row.ISRC = "USAAA0000001"
	statement.NormalizeRow(&row)

	result := engine.Match(context.Background(), snap, row)
	if result.Status == statement.MatchExact {
		t.Fatalf("ambiguous ISRC must not produce an exact match: %+v", result)
	}
	if result.Status != statement.MatchNone || result.WorkID != "" {
		t.Fatalf("expected no_match without title, got %+v", result)
	}
	if len(result.Warnings) == 0 || !strings.Contains(result.Warnings[0], "ambiguous isrc") {
		t.Fatalf("expected ambiguity warning, got %v", result.Warnings)
	}
}

func TestFuzzyYesterdayInitialAutoMatches(t *testing.T) {
	snap := testSnapshot(t)
	engine := NewEngine(DefaultPolicy())

	result := engine.Match(context.Background(), snap, newRow(3, "Yesterday", "J. Lennon"))
	if result.Status != statement.MatchFuzzyHigh {
		t.Fatalf("expected fuzzy_high, got %s (%.3f)", result.Status, result.Confidence)
	}
	if result.WorkID != "w-yesterday" || result.Recommendation != RecommendAutoMatch {
		t.Fatalf("unexpected result %+v", result)
	}
	if math.Abs(result.Confidence-0.98) > 1e-9 {
		t.Fatalf("expected 0.6*1 + 0.4*0.95, got %.4f", result.Confidence)
	}
}

func TestUnrelatedTitleIsNoMatch(t *testing.T) {
	snap := testSnapshot(t)
	result := NewEngine(DefaultPolicy()).Match(context.Background(), snap, newRow(4, "Qqqq Xxxx", ""))
	if result.Status != statement.MatchNone || len(result.Candidates) != 0 {
		t.Fatalf("expected no_match with no candidates, got %+v", result)
	}
	if result.Recommendation != RecommendNoMatch {
		t.Fatalf("unexpected recommendation %s", result.Recommendation)
	}
}

func TestShareIssuesSurfaceAsWarnings(t *testing.T) {
	snap := testSnapshot(t)
	row := newRow(5, "", "")
	row.WorkCode = "HLP-1"
	statement.NormalizeRow(&row)
	result := NewEngine(DefaultPolicy()).Match(context.Background(), snap, row)
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "60") {
		t.Fatalf("expected share warning for w-help, got %v", result.Warnings)
	}
}

func TestStatusForIsMonotone(t *testing.T) {
	policy := DefaultPolicy()
	rank := map[statement.MatchStatus]int{
		statement.MatchNone:        0,
		statement.MatchFuzzyLow:    1,
		statement.MatchFuzzyMedium: 2,
		statement.MatchFuzzyHigh:   3,
	}
	prev := -1
	for score := 0.0; score <= 1.0; score += 0.01 {
		r := rank[policy.StatusFor(score)]
		if r < prev {
			t.Fatalf("status rank decreased at score %.2f", score)
		}
		prev = r
	}
	if policy.StatusFor(0.95) != statement.MatchFuzzyHigh || policy.StatusFor(0.70) != statement.MatchFuzzyMedium ||
		policy.StatusFor(0.30) != statement.MatchFuzzyLow || policy.StatusFor(0.29) != statement.MatchNone {
		t.Fatalf("threshold boundaries are inclusive")
	}
}

type stubSource struct {
	name       string
	candidates []Candidate
	err        error
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Candidates(context.Context, *catalog.Snapshot, statement.Row, int, float64) ([]Candidate, error) {
	return s.candidates, s.err
}

type countingSource struct {
	stubSource
	calls int
}

func (s *countingSource) Candidates(ctx context.Context, snap *catalog.Snapshot, row statement.Row, topK int, minSimilarity float64) ([]Candidate, error) {
	s.calls++
	return s.stubSource.Candidates(ctx, snap, row, topK, minSimilarity)
}

func TestSemanticCandidatesMergeByWork(t *testing.T) {
	snap := testSnapshot(t)
	engine := NewEngine(DefaultPolicy(),
		WithCandidateSource(stubSource{name: "a", candidates: []Candidate{
			{WorkID: "w-help", Title: "Help!", Score: 0.6, Method: statement.MethodSemantic, Evidence: []string{"a 0.60"}},
		}}),
		WithCandidateSource(stubSource{name: "b", candidates: []Candidate{
			{WorkID: "w-help", Title: "Help!", Score: 0.8, Method: statement.MethodSemantic, Evidence: []string{"b 0.80"}},
		}}),
	)
	result := engine.Match(context.Background(), snap, newRow(6, "Qqqq Xxxx", ""))
	if len(result.Candidates) != 1 {
		t.Fatalf("expected candidates deduplicated by work, got %+v", result.Candidates)
	}
	top := result.Candidates[0]
	if top.Score != 0.8 || len(top.Evidence) != 2 {
		t.Fatalf("expected max score with concatenated evidence, got %+v", top)
	}
	if result.Status != statement.MatchFuzzyMedium || result.Method != statement.MethodSemantic || result.Recommendation != RecommendReview {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSemanticFailureIsAbsorbed(t *testing.T) {
	snap := testSnapshot(t)
	engine := NewEngine(DefaultPolicy(), WithCandidateSource(stubSource{name: "down", err: errors.New("connection refused")}))
	result := engine.Match(context.Background(), snap, newRow(7, "Yesterdy", ""))
	if !result.Failed() {
		t.Fatalf("expected failed stage outcome, got %+v", result.Stages)
	}
	if result.WorkID != "w-yesterday" {
		t.Fatalf("expected fuzzy result to survive, got %+v", result)
	}
}

type stubReranker struct {
	scores []RerankScore
	err    error
	calls  int
}

func (s *stubReranker) Rerank(_ context.Context, _ statement.Row, candidates []RerankCandidate) ([]RerankScore, error) {
	s.calls++
	return s.scores, s.err
}

func TestRerankBlendsScores(t *testing.T) {
	snap := testSnapshot(t)
	reranker := &stubReranker{scores: []RerankScore{
		{WorkID: "w-help", Score: 1, Reason: "same song"},
		{WorkID: "w-cover", Score: 0.2, Reason: "different song"},
	}}
	engine := NewEngine(DefaultPolicy(),
		WithCandidateSource(stubSource{name: "a", candidates: twoSemanticCandidates()}),
		WithReranker(reranker),
	)
	result := engine.Match(context.Background(), snap, newRow(8, "Qqqq Xxxx", ""))
	if reranker.calls != 1 {
		t.Fatalf("expected one rerank call, got %d", reranker.calls)
	}
	if math.Abs(result.Confidence-0.92) > 1e-9 {
		t.Fatalf("expected 0.4*0.8 + 0.6*1.0, got %.4f", result.Confidence)
	}
	if result.Method != statement.MethodRerank || result.WorkID != "w-help" {
		t.Fatalf("expected rerank method on w-help, got %s %s", result.Method, result.WorkID)
	}
	if len(result.Candidates) != 2 || math.Abs(result.Candidates[1].Score-0.32) > 1e-9 {
		t.Fatalf("expected 0.4*0.5 + 0.6*0.2 for runner-up, got %+v", result.Candidates)
	}
}

func twoSemanticCandidates() []Candidate {
	return []Candidate{
		{WorkID: "w-help", Title: "Help!", Score: 0.8, Method: statement.MethodSemantic},
		{WorkID: "w-cover", Title: "Let It Be Me", Score: 0.5, Method: statement.MethodSemantic},
	}
}

func TestRerankSkippedForSingleCandidate(t *testing.T) {
	snap := testSnapshot(t)
	reranker := &stubReranker{scores: []RerankScore{{WorkID: "w-help", Score: 1}}}
	engine := NewEngine(DefaultPolicy(),
		WithCandidateSource(stubSource{name: "a", candidates: []Candidate{{WorkID: "w-help", Score: 0.9, Method: statement.MethodSemantic}}}),
		WithReranker(reranker),
	)
	result := engine.Match(context.Background(), snap, newRow(11, "Qqqq Xxxx", ""))
	if reranker.calls != 0 {
		t.Fatalf("reranker must not run for a lone candidate, got %d calls", reranker.calls)
	}
	if result.Confidence != 0.9 || result.Recommendation == RecommendAutoMatch {
		t.Fatalf("lone candidate must stay below auto-match, got %+v", result)
	}
	last := result.Stages[len(result.Stages)-1]
	if last.Stage != StageRerank || last.State != StageSkipped || last.Detail != "single candidate" {
		t.Fatalf("expected skipped rerank outcome, got %+v", last)
	}
}

func TestRerankFailureKeepsPriorOrder(t *testing.T) {
	snap := testSnapshot(t)
	reranker := &stubReranker{err: errors.New("http 503")}
	engine := NewEngine(DefaultPolicy(),
		WithCandidateSource(stubSource{name: "a", candidates: twoSemanticCandidates()}),
		WithReranker(reranker),
	)
	result := engine.Match(context.Background(), snap, newRow(9, "Qqqq Xxxx", ""))
	if result.Confidence != 0.8 || result.Status != statement.MatchFuzzyMedium || result.WorkID != "w-help" {
		t.Fatalf("expected prior score to stand, got %+v", result)
	}
	if reranker.calls != 1 {
		t.Fatalf("expected one rerank attempt, got %d", reranker.calls)
	}
	last := result.Stages[len(result.Stages)-1]
	if last.Stage != StageRerank || last.State != StageFailed {
		t.Fatalf("expected failed rerank outcome, got %+v", last)
	}
}

func TestRerankSkippedForConclusiveMatch(t *testing.T) {
	snap := testSnapshot(t)
	reranker := &stubReranker{}
	engine := NewEngine(DefaultPolicy(), WithReranker(reranker))
	engine.Match(context.Background(), snap, newRow(10, "Yesterday", "John Lennon"))
	if reranker.calls != 0 {
		t.Fatalf("reranker should not run for conclusive matches")
	}
}

func TestMergeCandidates(t *testing.T) {
	merged := mergeCandidates(
		[]Candidate{{WorkID: "a", Score: 0.5, Method: statement.MethodFuzzy, Evidence: []string{"title"}}},
		[]Candidate{{WorkID: "b", Score: 0.7}, {WorkID: "a", Score: 0.9, Method: statement.MethodSemantic, Evidence: []string{"vec"}}},
	)
	if len(merged) != 2 || merged[0].WorkID != "a" || merged[0].Method != statement.MethodSemantic {
		t.Fatalf("unexpected merge %+v", merged)
	}
	if strings.Join(merged[0].Evidence, ",") != "title,vec" {
		t.Fatalf("unexpected evidence %v", merged[0].Evidence)
	}
}
