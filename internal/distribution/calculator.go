package distribution

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"royalties/internal/catalog"
	"royalties/internal/logging"
	"royalties/internal/services"
	"royalties/internal/statement"
)

var hundred = decimal.NewFromInt(100)

// Calculator computes distributions for a statement.
type Calculator struct {
	tolerance decimal.Decimal
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option customizes a Calculator.
type Option func(*Calculator)

// WithTolerance sets how far from 100% a share total may drift and still be
// treated as fully allocated.
func WithTolerance(tolerance float64) Option {
	return func(c *Calculator) { c.tolerance = decimal.NewFromFloat(tolerance) }
}

// WithLogger sets the calculator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calculator) { c.logger = logging.NewComponentLogger(logger, "distribution") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

// WithIDGenerator overrides distribution id generation.
func WithIDGenerator(newID func() string) Option {
	return func(c *Calculator) { c.newID = newID }
}

// NewCalculator constructs a calculator.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		tolerance: decimal.NewFromFloat(0.01),
		logger:    logging.NewComponentLogger(nil, "distribution"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is a calculated distribution run.
type Result struct {
	Distributions []Distribution
	Summary       Summary
}

type groupKey struct {
	workID    string
	rightType string
}

type group struct {
	work       *catalog.Work
	rightType  string
	gross      decimal.Decimal
	rows       []int
	territory  string
	period     string
	mixedTerr  bool
	mixedPer   bool
	firstAdded bool
}

func (g *group) add(row statement.Row) {
	g.gross = g.gross.Add(row.Amount)
	g.rows = append(g.rows, row.RowNumber)
	if !g.firstAdded {
		g.territory, g.period, g.firstAdded = row.Territory, row.Period, true
		return
	}
	if row.Territory != g.territory {
		g.mixedTerr = true
	}
	if row.Period != g.period {
		g.mixedPer = true
	}
}

type payee struct {
	partyType PartyType
	id        string
	name      string
	share     decimal.Decimal
}

// Calculate splits the gross of distributable rows across the payees of
// their matched works. Rows that are not distributable, reference a work
// missing from snap, or fall on over-allocated works are undistributed.
func (c *Calculator) Calculate(ctx context.Context, stmt statement.Statement, rows []statement.Row, snap *catalog.Snapshot) (*Result, error) {
	logger := logging.WithContext(ctx, c.logger)
	now := c.now().UTC()
	currency := stmt.Currency
	summary := Summary{
		StatementID:        stmt.ID,
		TotalGross:         decimal.Zero,
		TotalDistributed:   decimal.Zero,
		TotalUndistributed: decimal.Zero,
		TotalRows:          len(rows),
		ByRightType:        make(map[string]RightTypeTotal),
		CalculatedAt:       now,
	}

	groups := make(map[groupKey]*group)
	for _, row := range rows {
		summary.TotalGross = summary.TotalGross.Add(row.Amount)
		if currency == "" {
			currency = row.Currency
		}
		if !row.MatchStatus.Distributable() || row.MatchedWorkID == "" {
			summary.TotalUndistributed = summary.TotalUndistributed.Add(row.Amount)
			continue
		}
		summary.MatchedRows++
		work, ok := snap.WorkByID(row.MatchedWorkID)
		if !ok {
			summary.TotalUndistributed = summary.TotalUndistributed.Add(row.Amount)
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("row %d: matched work %s not in catalog", row.RowNumber, row.MatchedWorkID))
			continue
		}
		rightType := statement.ResolveRightType(row.RightType, row.UsageType)
		key := groupKey{workID: work.ID, rightType: rightType}
		g, ok := groups[key]
		if !ok {
			g = &group{work: work, rightType: rightType, gross: decimal.Zero}
			groups[key] = g
		}
		g.add(row)
	}
	summary.Currency = currency
	if summary.TotalRows > 0 {
		summary.MatchRate = float64(summary.MatchedRows) / float64(summary.TotalRows)
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].workID != keys[j].workID {
			return keys[i].workID < keys[j].workID
		}
		return keys[i].rightType < keys[j].rightType
	})

	var distributions []Distribution
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g := groups[key]
		split, undistributed, warning, adjustment := c.split(g)
		summary.TotalUndistributed = summary.TotalUndistributed.Add(undistributed)
		if warning != "" {
			summary.Warnings = append(summary.Warnings, warning)
			logging.WarnWithContext(logger, "work shares not fully allocated", "distribution_share_mismatch",
				logging.String(logging.FieldWorkID, g.work.ID),
				logging.String("right_type", g.rightType),
				logging.String("detail", warning),
				logging.String(logging.FieldImpact, "unallocated income left undistributed"),
			)
		}
		if adjustment != nil {
			summary.Adjustments = append(summary.Adjustments, *adjustment)
			logger.Info("distribution rounding adjustment",
				logging.String(logging.FieldEventType, "distribution_rounding"),
				logging.String(logging.FieldWorkID, adjustment.WorkID),
				logging.String("right_type", adjustment.RightType),
				logging.String("party_id", adjustment.PartyID),
				logging.Money("adjustment", adjustment.Amount),
			)
		}
		for _, p := range split {
			d := Distribution{
				ID:                 c.newID(),
				StatementID:        stmt.ID,
				TenantID:           stmt.TenantID,
				WorkID:             g.work.ID,
				WorkTitle:          g.work.Title,
				PartyType:          p.payee.partyType,
				PartyName:          p.payee.name,
				RightType:          g.rightType,
				Currency:           currency,
				Gross:              g.gross,
				SharePercent:       p.payee.share,
				Net:                p.net,
				RoundingAdjustment: p.adjustment,
				RowNumbers:         append([]int(nil), g.rows...),
				Status:             PayoutPending,
				CreatedAt:          now,
			}
			if !g.mixedTerr {
				d.Territory = g.territory
			}
			if !g.mixedPer {
				d.Period = g.period
			}
			if p.payee.partyType == PartyWriter {
				d.WriterID = p.payee.id
			} else {
				d.PublisherID = p.payee.id
			}
			summary.TotalDistributed = summary.TotalDistributed.Add(d.Net)
			distributions = append(distributions, d)
		}
	}

	if !summary.TotalDistributed.Add(summary.TotalUndistributed).Equal(summary.TotalGross) {
		return nil, services.Wrap(services.ErrIntegrity, "distribution", "reconcile",
			fmt.Sprintf("distributed %s + undistributed %s != gross %s",
				summary.TotalDistributed, summary.TotalUndistributed, summary.TotalGross), nil)
	}
	summarize(&summary, distributions)
	return &Result{Distributions: distributions, Summary: summary}, nil
}

type allocation struct {
	payee      payee
	net        decimal.Decimal
	adjustment decimal.Decimal
}

// split allocates one group. It returns the allocations, the amount left
// undistributed, an optional warning, and the rounding adjustment if any.
func (c *Calculator) split(g *group) ([]allocation, decimal.Decimal, string, *Adjustment) {
	payees := payeesFor(g.work, g.rightType)
	total := decimal.Zero
	for _, p := range payees {
		total = total.Add(p.share)
	}
	switch {
	case len(payees) == 0:
		return nil, g.gross, fmt.Sprintf("work %s (%s): no payees", g.work.ID, g.rightType), nil
	case total.GreaterThan(hundred.Add(c.tolerance)):
		return nil, g.gross, fmt.Sprintf("work %s (%s): shares total %s%%, over-allocated", g.work.ID, g.rightType, total), nil
	}

	// Nets are paid in whole cents; digits below a cent in the gross stay
	// undistributed rather than landing on a payee.
	payable := g.gross.Round(2)
	subCent := g.gross.Sub(payable)

	out := make([]allocation, len(payees))
	allocated := decimal.Zero
	largest := 0
	for i, p := range payees {
		net := payable.Mul(p.share).Div(hundred).Round(2)
		out[i] = allocation{payee: p, net: net, adjustment: decimal.Zero}
		allocated = allocated.Add(net)
		if p.share.GreaterThan(payees[largest].share) {
			largest = i
		}
	}
	remainder := payable.Sub(allocated)

	if total.Sub(hundred).Abs().LessThanOrEqual(c.tolerance) {
		if remainder.IsZero() {
			return out, subCent, "", nil
		}
		out[largest].net = out[largest].net.Add(remainder)
		out[largest].adjustment = remainder
		return out, subCent, "", &Adjustment{
			WorkID:    g.work.ID,
			RightType: g.rightType,
			PartyID:   out[largest].payee.id,
			Amount:    remainder,
		}
	}
	return out, remainder.Add(subCent), fmt.Sprintf("work %s (%s): shares total %s%%, remainder %s undistributed", g.work.ID, g.rightType, total, remainder), nil
}

func payeesFor(work *catalog.Work, rightType string) []payee {
	var out []payee
	for _, w := range work.Writers {
		if share := w.ShareFor(rightType); share.IsPositive() {
			out = append(out, payee{partyType: PartyWriter, id: w.ID, name: w.Name, share: share})
		}
	}
	for _, p := range work.Publishers {
		if share := p.ShareFor(rightType); share.IsPositive() {
			out = append(out, payee{partyType: PartyPublisher, id: p.ID, name: p.Name, share: share})
		}
	}
	return out
}

// summarize fills the per right type, writer, and publisher breakdowns.
func summarize(summary *Summary, distributions []Distribution) {
	writers := make(map[string]*PartyTotal)
	publishers := make(map[string]*PartyTotal)
	for _, d := range distributions {
		rt := summary.ByRightType[d.RightType]
		rt.Amount = rt.Amount.Add(d.Net)
		summary.ByRightType[d.RightType] = rt

		target := writers
		if d.PartyType == PartyPublisher {
			target = publishers
		}
		total, ok := target[d.PartyID()]
		if !ok {
			total = &PartyTotal{ID: d.PartyID(), Name: d.PartyName, Amount: decimal.Zero}
			target[d.PartyID()] = total
		}
		total.Amount = total.Amount.Add(d.Net)
	}
	for key, rt := range summary.ByRightType {
		rt.Percentage = percentage(rt.Amount, summary.TotalDistributed)
		summary.ByRightType[key] = rt
	}
	summary.ByWriter = rankParties(writers, summary.TotalDistributed)
	summary.ByPublisher = rankParties(publishers, summary.TotalDistributed)
}

func rankParties(parties map[string]*PartyTotal, total decimal.Decimal) []PartyTotal {
	out := make([]PartyTotal, 0, len(parties))
	for _, p := range parties {
		p.Percentage = percentage(p.Amount, total)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func percentage(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(total).Round(2)
}
