package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"royalties/internal/catalog"
	"royalties/internal/distribution"
	"royalties/internal/logging"
	"royalties/internal/matching"
	"royalties/internal/services"
	"royalties/internal/statement"
)

// Repository persists statements and their rows.
type Repository interface {
	CreateStatement(ctx context.Context, stmt *statement.Statement) error
	GetStatement(ctx context.Context, id string) (*statement.Statement, error)
	UpdateStatementStatus(ctx context.Context, id string, status statement.Status, message string) error
	// ReplaceRows discards prior rows and anything derived from them.
	ReplaceRows(ctx context.Context, statementID string, rows []statement.Row) error
	SaveMatchResults(ctx context.Context, statementID string, rows []statement.Row) error
	SaveStatementStats(ctx context.Context, id string, stats statement.Stats) error
	ListRows(ctx context.Context, statementID string) ([]statement.Row, error)
}

// CatalogSource supplies tenant snapshots.
type CatalogSource interface {
	Get(ctx context.Context, tenantID, statementID string) (*catalog.Snapshot, error)
}

// Matcher matches one row.
type Matcher interface {
	Match(ctx context.Context, snap *catalog.Snapshot, row statement.Row) matching.Result
}

// ReviewQueue accepts rows that need a reviewer.
type ReviewQueue interface {
	Enqueue(ctx context.Context, statementID, tenantID string, results []matching.Result) (int, error)
}

// Distributor calculates and stores distributions.
type Distributor interface {
	Distribute(ctx context.Context, stmt statement.Statement, rows []statement.Row, snap *catalog.Snapshot) (*distribution.Summary, error)
}

// ProgressFunc receives completion in [0,100].
type ProgressFunc func(percent float64)

// Result is the outcome of one processing run.
type Result struct {
	StatementID  string                `json:"statementId"`
	Status       statement.Status      `json:"status"`
	Stats        statement.Stats       `json:"stats"`
	Distribution *distribution.Summary `json:"distribution,omitempty"`
	Errors       []string              `json:"errors"`
	Warnings     []string              `json:"warnings"`
}

// Processor orchestrates statement runs.
type Processor struct {
	repo        Repository
	parser      statement.Parser
	catalog     CatalogSource
	matcher     Matcher
	review      ReviewQueue
	distributor Distributor
	batchSize   int
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Processor.
type Option func(*Processor)

// WithParser replaces the default tabular parser.
func WithParser(parser statement.Parser) Option {
	return func(p *Processor) { p.parser = parser }
}

// WithDistributor enables distribution at the end of each run.
func WithDistributor(d Distributor) Option {
	return func(p *Processor) { p.distributor = d }
}

// WithBatchSize sets how many rows are matched per batch.
func WithBatchSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithConcurrency sets how many rows of a batch are matched at once.
func WithConcurrency(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger sets the processor logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) { p.logger = logging.NewComponentLogger(logger, "processor") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// New constructs a processor.
func New(repo Repository, source CatalogSource, matcher Matcher, review ReviewQueue, opts ...Option) *Processor {
	p := &Processor{
		repo:        repo,
		parser:      statement.NewTabularParser("USD"),
		catalog:     source,
		matcher:     matcher,
		review:      review,
		batchSize:   100,
		concurrency: 3,
		logger:      logging.NewComponentLogger(nil, "processor"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Upload is a statement file submitted for processing.
type Upload struct {
	TenantID string
	Source   string
	FileName string
	Data     []byte
}

// UploadStatement validates and stores a statement file. A parse pass fills
// the row count, gross, currency, and period; input errors reject the upload.
func (p *Processor) UploadStatement(ctx context.Context, upload Upload) (*statement.Statement, error) {
	tenantID := strings.TrimSpace(upload.TenantID)
	if tenantID == "" {
		return nil, services.Wrap(services.ErrValidation, "upload", "validate", "tenant required", nil)
	}
	if len(upload.Data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "upload", "validate", "file is empty", nil)
	}
	format, err := statement.DetectFormat(upload.FileName)
	if err != nil {
		return nil, err
	}
	rows, err := p.parser.Parse(ctx, format, upload.Data)
	if err != nil {
		return nil, err
	}
	totals := statement.Summarize(rows)
	now := p.now().UTC()
	stmt := &statement.Statement{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Source:     strings.TrimSpace(upload.Source),
		FileName:   upload.FileName,
		Format:     format,
		Status:     statement.StatusUploaded,
		Currency:   totals.Currency,
		Period:     totals.Period,
		TotalGross: totals.TotalGross,
		RowCount:   totals.RowCount,
		File:       upload.Data,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := p.repo.CreateStatement(ctx, stmt); err != nil {
		return nil, services.Wrap(services.ErrPersistence, "upload", "store", "", err)
	}
	logging.WithContext(services.WithStatementID(ctx, stmt.ID), p.logger).Info("statement uploaded",
		logging.String(logging.FieldEventType, "statement_uploaded"),
		logging.String(logging.FieldTenantID, tenantID),
		logging.Int("rows", stmt.RowCount),
		logging.Money("total_gross", stmt.TotalGross),
	)
	return stmt, nil
}

// ProcessStatement runs the full pipeline for a stored statement. On failure
// the statement is marked failed and the returned Result describes it
// alongside the error.
func (p *Processor) ProcessStatement(ctx context.Context, statementID string, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	stmt, err := p.repo.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	ctx = services.WithStatementID(ctx, stmt.ID)
	ctx = services.WithTenant(ctx, stmt.TenantID)
	run := &run{p: p, stmt: stmt, logger: logging.WithContext(ctx, p.logger), progress: progress, started: p.now()}
	run.result = &Result{StatementID: stmt.ID, Errors: []string{}, Warnings: []string{}}

	if err := run.execute(ctx); err != nil {
		return run.fail(ctx, err)
	}
	return run.result, nil
}

// Distribute recalculates distributions for a statement from its stored
// rows, for example after review resolutions.
func (p *Processor) Distribute(ctx context.Context, statementID string) (*distribution.Summary, error) {
	if p.distributor == nil {
		return nil, services.Wrap(services.ErrConfiguration, "distribution", "calculate", "distribution disabled", nil)
	}
	stmt, err := p.repo.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	rows, err := p.repo.ListRows(ctx, statementID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "distribution", "load rows", "", err)
	}
	snap, err := p.catalog.Get(ctx, stmt.TenantID, stmt.ID)
	if err != nil {
		return nil, err
	}
	return p.distributor.Distribute(ctx, *stmt, rows, snap)
}

type run struct {
	p        *Processor
	stmt     *statement.Statement
	logger   *slog.Logger
	progress ProgressFunc
	started  time.Time
	result   *Result
}

func (r *run) execute(ctx context.Context) error {
	p := r.p
	if err := r.setStatus(ctx, statement.StatusProcessing); err != nil {
		return err
	}

	rows, err := p.parser.Parse(ctx, r.stmt.Format, r.stmt.File)
	if err != nil {
		return err
	}
	for i := range rows {
		rows[i].StatementID = r.stmt.ID
	}
	if err := p.repo.ReplaceRows(ctx, r.stmt.ID, rows); err != nil {
		return services.Wrap(services.ErrPersistence, "processing", "store rows", "", err)
	}
	r.progress(5)

	snap, err := p.catalog.Get(ctx, r.stmt.TenantID, r.stmt.ID)
	if err != nil {
		return err
	}
	if err := r.setStatus(ctx, statement.StatusMatching); err != nil {
		return err
	}
	r.progress(10)

	results, err := r.matchAll(ctx, snap, rows)
	if err != nil {
		return err
	}

	enqueued, err := p.review.Enqueue(ctx, r.stmt.ID, r.stmt.TenantID, results)
	if err != nil {
		return err
	}

	if p.distributor != nil {
		summary, err := p.distributor.Distribute(ctx, *r.stmt, rows, snap)
		if err != nil {
			return err
		}
		r.result.Distribution = summary
		r.result.Warnings = append(r.result.Warnings, summary.Warnings...)
	}
	r.progress(95)

	final := statement.StatusCompleted
	if enqueued > 0 {
		final = statement.StatusReview
	}
	stats := &r.result.Stats
	stats.Errors = len(r.result.Errors)
	stats.Warnings = len(r.result.Warnings)
	if err := p.repo.SaveStatementStats(ctx, r.stmt.ID, *stats); err != nil {
		return services.Wrap(services.ErrPersistence, "processing", "save stats", "", err)
	}
	if err := r.setStatus(ctx, final); err != nil {
		return err
	}
	r.result.Status = final
	r.progress(100)

	r.logger.Info("statement processed",
		logging.String(logging.FieldEventType, "statement_processed"),
		logging.String("status", string(final)),
		logging.Int("rows", stats.ProcessedRows),
		logging.Int("exact", stats.ExactMatches),
		logging.Int("fuzzy", stats.FuzzyMatches),
		logging.Int("no_match", stats.NoMatches),
		logging.Int("review", enqueued),
		logging.Int("errors", stats.Errors),
		logging.Int("warnings", stats.Warnings),
		logging.Duration("elapsed", r.p.now().Sub(r.started)),
	)
	return nil
}

// matchAll matches rows batch by batch. Rows inside a batch run in parallel
// and land in result slots by index, so completion order does not matter.
func (r *run) matchAll(ctx context.Context, snap *catalog.Snapshot, rows []statement.Row) ([]matching.Result, error) {
	p := r.p
	all := make([]matching.Result, 0, len(rows))
	total := len(rows)
	for start := 0; start < total; start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, interrupted(err)
		}
		end := min(start+p.batchSize, total)
		batch := rows[start:end]
		results := make([]matching.Result, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.concurrency)
		for i := range batch {
			g.Go(func() error {
				results[i] = p.matcher.Match(gctx, snap, batch[i])
				return nil
			})
		}
		_ = g.Wait()

		var batchStats statement.Stats
		for i := range batch {
			res := results[i]
			res.Apply(&batch[i])
			batchStats.Record(res.Status, res.Elapsed)
			for _, warning := range res.Warnings {
				r.result.Warnings = append(r.result.Warnings, fmt.Sprintf("row %d: %s", res.RowNumber, warning))
			}
			for _, stage := range res.Stages {
				if stage.State == matching.StageFailed {
					r.result.Errors = append(r.result.Errors, fmt.Sprintf("row %d: %s stage skipped: %s", res.RowNumber, stage.Stage, stageDetail(stage)))
				}
			}
		}
		// A matched batch is kept even when the run was cancelled mid-batch.
		persistCtx := context.WithoutCancel(ctx)
		if err := p.repo.SaveMatchResults(persistCtx, r.stmt.ID, batch); err != nil {
			return nil, services.Wrap(services.ErrPersistence, "matching", "save results", "", err)
		}
		r.result.Stats.Merge(batchStats)
		stats := r.result.Stats
		stats.Errors = len(r.result.Errors)
		stats.Warnings = len(r.result.Warnings)
		if err := p.repo.SaveStatementStats(persistCtx, r.stmt.ID, stats); err != nil {
			return nil, services.Wrap(services.ErrPersistence, "matching", "save stats", "", err)
		}
		all = append(all, results...)
		r.progress(10 + 80*float64(end)/float64(total))
		r.logger.Debug("batch matched",
			logging.Int("from_row", batch[0].RowNumber),
			logging.Int("to_row", batch[len(batch)-1].RowNumber),
		)
	}
	return all, nil
}

func stageDetail(stage matching.StageOutcome) string {
	if stage.Err != nil {
		return stage.Err.Error()
	}
	if stage.Detail != "" {
		return stage.Detail
	}
	return "failed"
}

func interrupted(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "matching", "batch", "task timed out", err)
	}
	return services.Wrap(services.ErrTransient, "matching", "batch", "processing cancelled", err)
}

func (r *run) setStatus(ctx context.Context, status statement.Status) error {
	if err := r.p.repo.UpdateStatementStatus(ctx, r.stmt.ID, status, ""); err != nil {
		return services.Wrap(services.ErrPersistence, "processing", "update status", string(status), err)
	}
	r.stmt.Status = status
	return nil
}

// fail records the failure on the statement. Persistence uses a context that
// outlives cancellation so a timed-out run is still marked failed.
func (r *run) fail(ctx context.Context, cause error) (*Result, error) {
	details := services.Details(cause)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = cause.Error()
	}
	r.result.Status = statement.StatusFailed
	r.result.Errors = append(r.result.Errors, message)
	r.result.Stats.Errors = len(r.result.Errors)
	r.result.Stats.Warnings = len(r.result.Warnings)

	logging.ErrorWithContext(r.logger, "statement processing failed", "statement_failed",
		logging.String(logging.FieldImpact, "statement left in failed state; partial rows retained"),
		logging.Error(cause),
	)

	persistCtx := context.WithoutCancel(ctx)
	if err := r.p.repo.SaveStatementStats(persistCtx, r.stmt.ID, r.result.Stats); err != nil {
		r.logger.Warn("failed to save stats for failed statement", logging.Error(err))
	}
	if err := r.p.repo.UpdateStatementStatus(persistCtx, r.stmt.ID, statement.StatusFailed, message); err != nil {
		r.logger.Error("failed to mark statement failed", logging.Error(err))
	}
	return r.result, cause
}
