package matching

import (
	"time"

	"royalties/internal/statement"
)

// Recommendation is the action suggested for a result.
type Recommendation string

const (
	RecommendAutoMatch Recommendation = "auto_match"
	RecommendReview    Recommendation = "review"
	RecommendNoMatch   Recommendation = "no_match"
)

// Candidate is one scored catalog work for a row.
type Candidate struct {
	WorkID   string                `json:"work_id"`
	Title    string                `json:"title"`
	Score    float64               `json:"score"`
	Method   statement.MatchMethod `json:"method"`
	Evidence []string              `json:"evidence,omitempty"`
}

// StageState is how a stage ended for a row.
type StageState string

const (
	StageOK      StageState = "ok"
	StageSkipped StageState = "skipped"
	StageFailed  StageState = "failed"
)

// Stage names.
const (
	StageExact    = "exact"
	StageFuzzy    = "fuzzy"
	StageSemantic = "semantic"
	StageRerank   = "rerank"
)

// StageOutcome records what a stage did for one row.
type StageOutcome struct {
	Stage      string        `json:"stage"`
	Source     string        `json:"source,omitempty"`
	State      StageState    `json:"state"`
	Detail     string        `json:"detail,omitempty"`
	Candidates int           `json:"candidates"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// Result is the engine's verdict for one row. Re-matching a row replaces it.
type Result struct {
	RowNumber      int                   `json:"row_number"`
	Status         statement.MatchStatus `json:"status"`
	Confidence     float64               `json:"confidence"`
	WorkID         string                `json:"work_id,omitempty"`
	Method         statement.MatchMethod `json:"method,omitempty"`
	Recommendation Recommendation        `json:"recommendation"`
	Candidates     []Candidate           `json:"candidates,omitempty"`
	Stages         []StageOutcome        `json:"stages,omitempty"`
	Warnings       []string              `json:"warnings,omitempty"`
	Elapsed        time.Duration         `json:"elapsed"`
}

// Failed reports whether any stage failed.
func (r Result) Failed() bool {
	for _, stage := range r.Stages {
		if stage.State == StageFailed {
			return true
		}
	}
	return false
}

// Apply writes the match fields onto row.
func (r Result) Apply(row *statement.Row) {
	row.MatchStatus = r.Status
	row.MatchedWorkID = r.WorkID
	row.MatchConfidence = r.Confidence
	row.MatchMethod = r.Method
}
