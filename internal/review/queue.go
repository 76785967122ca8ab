package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"royalties/internal/logging"
	"royalties/internal/matching"
	"royalties/internal/services"
	"royalties/internal/statement"
)

// Repository persists review items.
type Repository interface {
	UpsertReviewItems(ctx context.Context, items []Item) (int, error)
	GetReviewItem(ctx context.Context, id string) (*Item, error)
	ListReviewItems(ctx context.Context, filter Filter) ([]Item, error)
	// ResolveReviewItem closes a pending item and writes match onto its row
	// in one transaction. It reports false when the item was not pending.
	ResolveReviewItem(ctx context.Context, id string, resolution Resolution, status Status, match RowMatch) (bool, error)
	RecordReviewSkip(ctx context.Context, id, by string) error
	AssignReviewItem(ctx context.Context, id, assignee string) error
	CountReviewItems(ctx context.Context, statementID string) (map[Status]int, error)
}

// Queue is the review service.
type Queue struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logging.NewComponentLogger(logger, "review") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue constructs a review queue over repo.
func NewQueue(repo Repository, opts ...Option) *Queue {
	q := &Queue{repo: repo, logger: logging.NewComponentLogger(nil, "review"), now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue upserts a pending item for every result that needs review and
// returns how many were written.
func (q *Queue) Enqueue(ctx context.Context, statementID, tenantID string, results []matching.Result) (int, error) {
	now := q.now().UTC()
	items := make([]Item, 0, len(results))
	for _, result := range results {
		if !result.Status.NeedsReview() {
			continue
		}
		items = append(items, Item{
			ID:              uuid.NewString(),
			StatementID:     statementID,
			TenantID:        tenantID,
			RowNumber:       result.RowNumber,
			Status:          StatusPending,
			MatchStatus:     result.Status,
			Confidence:      result.Confidence,
			SuggestedWorkID: result.WorkID,
			Candidates:      result.Candidates,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	if len(items) == 0 {
		return 0, nil
	}
	written, err := q.repo.UpsertReviewItems(ctx, items)
	if err != nil {
		return 0, services.Wrap(services.ErrPersistence, "review", "enqueue", "", err)
	}
	return written, nil
}

// Resolve applies action to an item. It reports whether the item changed
// state; skip never does, and an item that is no longer pending is left
// alone without error.
func (q *Queue) Resolve(ctx context.Context, itemID string, action Action, by string, opts ResolveOptions) (bool, error) {
	item, err := q.repo.GetReviewItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	if item.Status != StatusPending {
		return false, nil
	}
	return q.resolve(ctx, item, action, by, opts)
}

// BulkResolve applies action to every id and returns the number of items
// that transitioned. Items already resolved are skipped.
func (q *Queue) BulkResolve(ctx context.Context, ids []string, action Action, by string) (int, error) {
	if action == ActionRematch {
		return 0, services.Wrap(services.ErrValidation, "review", "bulk resolve", "rematch needs a work per item", nil)
	}
	transitioned := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return transitioned, err
		}
		item, err := q.repo.GetReviewItem(ctx, id)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				continue
			}
			return transitioned, err
		}
		if item.Status != StatusPending {
			continue
		}
		changed, err := q.resolve(ctx, item, action, by, ResolveOptions{})
		if err != nil {
			return transitioned, err
		}
		if changed {
			transitioned++
		}
	}
	return transitioned, nil
}

func (q *Queue) resolve(ctx context.Context, item *Item, action Action, by string, opts ResolveOptions) (bool, error) {
	by = strings.TrimSpace(by)
	if by == "" {
		return false, services.Wrap(services.ErrValidation, "review", "resolve", "resolver required", nil)
	}
	if action == ActionSkip {
		if err := q.repo.RecordReviewSkip(ctx, item.ID, by); err != nil {
			return false, services.Wrap(services.ErrPersistence, "review", "skip", "", err)
		}
		return false, nil
	}

	confidence := 1.0
	if opts.Confidence != nil {
		if *opts.Confidence < 0 || *opts.Confidence > 1 {
			return false, services.Wrap(services.ErrValidation, "review", "resolve", "confidence must be within [0,1]", nil)
		}
		confidence = *opts.Confidence
	}
	resolution := Resolution{Action: action, ResolvedBy: by, ResolvedAt: q.now().UTC(), Note: strings.TrimSpace(opts.Note)}
	var (
		status Status
		match  RowMatch
	)
	switch action {
	case ActionApprove, ActionRematch:
		workID := strings.TrimSpace(opts.WorkID)
		if workID == "" && action == ActionApprove {
			workID = item.SuggestedWorkID
		}
		if workID == "" {
			return false, services.Wrap(services.ErrValidation, "review", string(action), "work id required", nil)
		}
		status = StatusApproved
		resolution.WorkID, resolution.Confidence = workID, confidence
		match = RowMatch{Status: statement.MatchManual, WorkID: workID, Confidence: confidence, Method: statement.MethodManual}
	case ActionReject:
		status = StatusRejected
		match = RowMatch{Status: statement.MatchNone, Method: statement.MethodManual}
	default:
		return false, services.Wrap(services.ErrValidation, "review", "resolve", fmt.Sprintf("unknown action %q", action), nil)
	}

	changed, err := q.repo.ResolveReviewItem(ctx, item.ID, resolution, status, match)
	if err != nil {
		return false, services.Wrap(services.ErrPersistence, "review", "resolve", "", err)
	}
	if changed {
		q.logger.Info("review item resolved",
			logging.String(logging.FieldEventType, "review_resolved"),
			logging.String(logging.FieldStatementID, item.StatementID),
			logging.Int(logging.FieldRowNumber, item.RowNumber),
			logging.String("action", string(action)),
			logging.String("resolved_by", by),
			logging.String(logging.FieldWorkID, resolution.WorkID),
		)
	}
	return changed, nil
}

// Assign sets the item's assignee.
func (q *Queue) Assign(ctx context.Context, itemID, assignee string) error {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return services.Wrap(services.ErrValidation, "review", "assign", "assignee required", nil)
	}
	return q.repo.AssignReviewItem(ctx, itemID, assignee)
}

// Get returns one item.
func (q *Queue) Get(ctx context.Context, itemID string) (*Item, error) {
	return q.repo.GetReviewItem(ctx, itemID)
}

// List returns items matching filter.
func (q *Queue) List(ctx context.Context, filter Filter) ([]Item, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return q.repo.ListReviewItems(ctx, filter)
}

// Stats counts items per status, optionally for one statement.
func (q *Queue) Stats(ctx context.Context, statementID string) (Stats, error) {
	counts, err := q.repo.CountReviewItems(ctx, statementID)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{
		Pending:  counts[StatusPending],
		Approved: counts[StatusApproved],
		Rejected: counts[StatusRejected],
	}
	stats.Total = stats.Pending + stats.Approved + stats.Rejected
	return stats, nil
}
