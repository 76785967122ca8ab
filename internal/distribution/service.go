package distribution

import (
	"context"
	"time"

	"royalties/internal/catalog"
	"royalties/internal/services"
	"royalties/internal/statement"
)

// Repository persists distribution runs.
type Repository interface {
	// ReplaceDistributions swaps a statement's distributions and summary in
	// one transaction.
	ReplaceDistributions(ctx context.Context, statementID string, distributions []Distribution, summary Summary) error
	ListDistributions(ctx context.Context, filter Filter) ([]Distribution, error)
	GetDistributionSummary(ctx context.Context, statementID string) (*Summary, error)
	MarkDistributionsPaid(ctx context.Context, ids []string, paidAt time.Time) (int, error)
}

// Service calculates and stores distributions.
type Service struct {
	calc *Calculator
	repo Repository
	now  func() time.Time
}

// NewService wires a calculator to a repository.
func NewService(calc *Calculator, repo Repository) *Service {
	return &Service{calc: calc, repo: repo, now: time.Now}
}

// Distribute recomputes and replaces a statement's distributions.
func (s *Service) Distribute(ctx context.Context, stmt statement.Statement, rows []statement.Row, snap *catalog.Snapshot) (*Summary, error) {
	result, err := s.calc.Calculate(ctx, stmt, rows, snap)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceDistributions(ctx, stmt.ID, result.Distributions, result.Summary); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "distribution", "store", "", err)
	}
	return &result.Summary, nil
}

// Summary returns the stored summary for a statement.
func (s *Service) Summary(ctx context.Context, statementID string) (*Summary, error) {
	return s.repo.GetDistributionSummary(ctx, statementID)
}

// List returns stored distributions.
func (s *Service) List(ctx context.Context, filter Filter) ([]Distribution, error) {
	return s.repo.ListDistributions(ctx, filter)
}

// MarkPaid flags pending distributions as paid and returns how many changed.
func (s *Service) MarkPaid(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, services.Wrap(services.ErrValidation, "distribution", "mark paid", "no distribution ids", nil)
	}
	return s.repo.MarkDistributionsPaid(ctx, ids, s.now().UTC())
}
