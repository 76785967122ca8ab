package statement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the processing lifecycle of a statement.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusMatching   Status = "matching"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further automatic transition is expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusReview, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusUploaded, StatusProcessing, StatusMatching, StatusReview, StatusCompleted, StatusFailed:
		return Status(value), true
	}
	return "", false
}

// MatchStatus is the outcome recorded on a row.
type MatchStatus string

const (
	MatchPending     MatchStatus = ""
	MatchExact       MatchStatus = "exact"
	MatchFuzzyHigh   MatchStatus = "fuzzy_high"
	MatchFuzzyMedium MatchStatus = "fuzzy_medium"
	MatchFuzzyLow    MatchStatus = "fuzzy_low"
	MatchNone        MatchStatus = "no_match"
	MatchManual      MatchStatus = "manual"
)

// Distributable reports whether rows with this status contribute to payouts.
func (m MatchStatus) Distributable() bool {
	return m == MatchExact || m == MatchFuzzyHigh || m == MatchManual
}

// NeedsReview reports whether the status is routed to the review queue.
func (m MatchStatus) NeedsReview() bool {
	return m == MatchFuzzyMedium || m == MatchFuzzyLow
}

// MatchMethod records which stage produced a row's match.
type MatchMethod string

const (
	MethodNone     MatchMethod = ""
	MethodISWC     MatchMethod = "iswc"
	MethodISRC     MatchMethod = "isrc"
	MethodWorkCode MatchMethod = "work_code"
	MethodFuzzy    MatchMethod = "fuzzy"
	MethodSemantic MatchMethod = "semantic"
	MethodRerank   MatchMethod = "rerank"
	MethodManual   MatchMethod = "manual"
)

// Right types used for distribution grouping.
const (
	RightPerformance = "performance"
	RightMechanical  = "mechanical"
	RightSync        = "sync"
	RightPrint       = "print"
	RightOther       = "other"
)

// Statement is an uploaded royalty statement.
type Statement struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	Source       string          `json:"source,omitempty"`
	FileName     string          `json:"file_name"`
	Format       Format          `json:"format"`
	Status       Status          `json:"status"`
	Currency     string          `json:"currency"`
	Period       string          `json:"period,omitempty"`
	TotalGross   decimal.Decimal `json:"total_gross"`
	RowCount     int             `json:"row_count"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Stats        Stats           `json:"stats"`
	File         []byte          `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
}

// Row is one usage line of a statement.
type Row struct {
	StatementID string            `json:"statement_id"`
	RowNumber   int               `json:"row_number"`
	Raw         map[string]string `json:"raw,omitempty"`

	Title     string `json:"title"`
	Writer    string `json:"writer,omitempty"`
	Performer string `json:"performer,omitempty"`
	ISRC      string `json:"isrc,omitempty"`
	ISWC      string `json:"iswc,omitempty"`
	WorkCode  string `json:"work_code,omitempty"`

	NormalizedTitle     string   `json:"normalized_title"`
	NormalizedWriters   []string `json:"normalized_writers,omitempty"`
	NormalizedPerformer string   `json:"normalized_performer,omitempty"`
	NormalizedISRC      string   `json:"normalized_isrc,omitempty"`
	NormalizedISWC      string   `json:"normalized_iswc,omitempty"`
	NormalizedWorkCode  string   `json:"normalized_work_code,omitempty"`

	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency,omitempty"`
	Territory string          `json:"territory,omitempty"`
	UsageType string          `json:"usage_type,omitempty"`
	Period    string          `json:"period,omitempty"`
	RightType string          `json:"right_type,omitempty"`

	MatchStatus     MatchStatus `json:"match_status,omitempty"`
	MatchedWorkID   string      `json:"matched_work_id,omitempty"`
	MatchConfidence float64     `json:"match_confidence"`
	MatchMethod     MatchMethod `json:"match_method,omitempty"`
}

// Stats aggregates per-run matching counters.
type Stats struct {
	ProcessedRows      int     `json:"processed_rows"`
	ExactMatches       int     `json:"exact_matches"`
	FuzzyMatches       int     `json:"fuzzy_matches"`
	NoMatches          int     `json:"no_matches"`
	ReviewRequired     int     `json:"review_required"`
	AverageMatchTimeMs float64 `json:"average_match_time_ms"`
	Errors             int     `json:"errors"`
	Warnings           int     `json:"warnings"`
}

// Merge folds another batch's counters into s, weighting the average match
// time by processed rows.
func (s *Stats) Merge(other Stats) {
	total := s.ProcessedRows + other.ProcessedRows
	if total > 0 {
		s.AverageMatchTimeMs = (s.AverageMatchTimeMs*float64(s.ProcessedRows) +
			other.AverageMatchTimeMs*float64(other.ProcessedRows)) / float64(total)
	}
	s.ProcessedRows = total
	s.ExactMatches += other.ExactMatches
	s.FuzzyMatches += other.FuzzyMatches
	s.NoMatches += other.NoMatches
	s.ReviewRequired += other.ReviewRequired
	s.Errors += other.Errors
	s.Warnings += other.Warnings
}

// Record counts one row outcome.
func (s *Stats) Record(status MatchStatus, elapsed time.Duration) {
	ms := float64(elapsed.Microseconds()) / 1000
	s.AverageMatchTimeMs = (s.AverageMatchTimeMs*float64(s.ProcessedRows) + ms) / float64(s.ProcessedRows+1)
	s.ProcessedRows++
	switch status {
	case MatchExact:
		s.ExactMatches++
	case MatchFuzzyHigh, MatchFuzzyMedium, MatchFuzzyLow:
		s.FuzzyMatches++
	case MatchNone, MatchPending:
		s.NoMatches++
	}
	if status.NeedsReview() {
		s.ReviewRequired++
	}
}

// Totals summarizes a parsed row set.
type Totals struct {
	RowCount   int
	TotalGross decimal.Decimal
	Currency   string
	Period     string
}

// Summarize computes totals across rows. Currency and period are reported
// only when every row agrees.
func Summarize(rows []Row) Totals {
	totals := Totals{TotalGross: decimal.Zero}
	mixedCurrency, mixedPeriod := false, false
	for i, row := range rows {
		totals.RowCount++
		totals.TotalGross = totals.TotalGross.Add(row.Amount)
		if i == 0 {
			totals.Currency, totals.Period = row.Currency, row.Period
			continue
		}
		if row.Currency != totals.Currency {
			mixedCurrency = true
		}
		if row.Period != totals.Period {
			mixedPeriod = true
		}
	}
	if mixedCurrency {
		totals.Currency = ""
	}
	if mixedPeriod {
		totals.Period = ""
	}
	return totals
}
