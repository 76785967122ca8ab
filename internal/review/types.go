package review

import (
	"time"

	"royalties/internal/matching"
	"royalties/internal/statement"
)

// Status is the lifecycle state of a review item.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus validates a status filter value.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusPending, StatusApproved, StatusRejected:
		return Status(value), true
	}
	return "", false
}

// Action is a reviewer decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionRematch Action = "rematch"
	ActionSkip    Action = "skip"
)

// ParseAction validates an action name.
func ParseAction(value string) (Action, bool) {
	switch Action(value) {
	case ActionApprove, ActionReject, ActionRematch, ActionSkip:
		return Action(value), true
	}
	return "", false
}

// Item is one row awaiting (or past) manual review.
type Item struct {
	ID              string                `json:"id"`
	StatementID     string                `json:"statement_id"`
	TenantID        string                `json:"tenant_id"`
	RowNumber       int                   `json:"row_number"`
	Status          Status                `json:"status"`
	MatchStatus     statement.MatchStatus `json:"match_status"`
	Confidence      float64               `json:"confidence"`
	SuggestedWorkID string                `json:"suggested_work_id,omitempty"`
	Candidates      []matching.Candidate  `json:"candidates,omitempty"`
	Assignee        string                `json:"assignee,omitempty"`
	SkippedBy       string                `json:"skipped_by,omitempty"`
	Resolution      *Resolution           `json:"resolution,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// Resolution records how an item was closed.
type Resolution struct {
	Action     Action    `json:"action"`
	WorkID     string    `json:"work_id,omitempty"`
	Confidence float64   `json:"confidence"`
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt time.Time `json:"resolved_at"`
	Note       string    `json:"note,omitempty"`
}

// RowMatch is the match state written to a statement row on resolution.
type RowMatch struct {
	Status     statement.MatchStatus
	WorkID     string
	Confidence float64
	Method     statement.MatchMethod
}

// Filter narrows List results.
type Filter struct {
	StatementID string
	TenantID    string
	Status      Status
	Assignee    string
	Limit       int
	Offset      int
}

// Stats counts items per status.
type Stats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}

// ResolveOptions carries optional resolution inputs.
type ResolveOptions struct {
	// WorkID is required for rematch and overrides the suggestion on approve.
	WorkID string
	// Confidence overrides the 1.0 written on approve and rematch.
	Confidence *float64
	Note       string
}
