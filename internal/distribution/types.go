package distribution

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartyType distinguishes writer and publisher payees.
type PartyType string

const (
	PartyWriter    PartyType = "writer"
	PartyPublisher PartyType = "publisher"
)

// PayoutStatus tracks whether a distribution has been paid.
type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutPaid    PayoutStatus = "paid"
)

// Distribution is one payee's share of a work's income for a right type.
// Exactly one of WriterID and PublisherID is set.
type Distribution struct {
	ID                 string          `json:"id"`
	StatementID        string          `json:"statement_id"`
	TenantID           string          `json:"tenant_id"`
	WorkID             string          `json:"work_id"`
	WorkTitle          string          `json:"work_title"`
	PartyType          PartyType       `json:"party_type"`
	WriterID           string          `json:"writer_id,omitempty"`
	PublisherID        string          `json:"publisher_id,omitempty"`
	PartyName          string          `json:"party_name"`
	RightType          string          `json:"right_type"`
	Territory          string          `json:"territory,omitempty"`
	Period             string          `json:"period,omitempty"`
	Currency           string          `json:"currency"`
	Gross              decimal.Decimal `json:"gross"`
	SharePercent       decimal.Decimal `json:"share_percent"`
	Net                decimal.Decimal `json:"net"`
	RoundingAdjustment decimal.Decimal `json:"rounding_adjustment"`
	RowNumbers         []int           `json:"row_numbers"`
	Status             PayoutStatus    `json:"status"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// PartyID returns whichever of WriterID and PublisherID is set.
func (d Distribution) PartyID() string {
	if d.WriterID != "" {
		return d.WriterID
	}
	return d.PublisherID
}

// PartyTotal aggregates distributions for one payee.
type PartyTotal struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

// RightTypeTotal aggregates distributions for one right type.
type RightTypeTotal struct {
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Adjustment records a rounding residual attributed to a work and right type.
type Adjustment struct {
	WorkID    string          `json:"work_id"`
	RightType string          `json:"right_type"`
	PartyID   string          `json:"party_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// Summary reconciles a statement's distribution run.
type Summary struct {
	StatementID        string                    `json:"statement_id"`
	Currency           string                    `json:"currency"`
	TotalGross         decimal.Decimal           `json:"total_gross"`
	TotalDistributed   decimal.Decimal           `json:"total_distributed"`
	TotalUndistributed decimal.Decimal           `json:"total_undistributed"`
	MatchRate          float64                   `json:"match_rate"`
	MatchedRows        int                       `json:"matched_rows"`
	TotalRows          int                       `json:"total_rows"`
	ByRightType        map[string]RightTypeTotal `json:"by_right_type"`
	ByWriter           []PartyTotal              `json:"by_writer"`
	ByPublisher        []PartyTotal              `json:"by_publisher"`
	Adjustments        []Adjustment              `json:"adjustments,omitempty"`
	Warnings           []string                  `json:"warnings,omitempty"`
	CalculatedAt       time.Time                 `json:"calculated_at"`
}

// Filter narrows stored distribution queries.
type Filter struct {
	StatementID string
	TenantID    string
	WorkID      string
	WriterID    string
	PublisherID string
	Status      PayoutStatus
	Limit       int
}
