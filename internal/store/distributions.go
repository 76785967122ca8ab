package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"royalties/internal/distribution"
)

const distributionColumns = "id, statement_id, tenant_id, work_id, work_title, party_type, writer_id, publisher_id, party_name, right_type, territory, period, currency, gross, share_percent, net, rounding_adjustment, row_numbers_json, status, paid_at, created_at"

func scanDistribution(sc scanner) (*distribution.Distribution, error) {
	var (
		d           distribution.Distribution
		workTitle   sql.NullString
		partyType   string
		writerID    sql.NullString
		publisherID sql.NullString
		partyName   sql.NullString
		territory   sql.NullString
		period      sql.NullString
		currency    sql.NullString
		gross       sql.NullString
		share       sql.NullString
		net         sql.NullString
		adjustment  sql.NullString
		rowNumbers  sql.NullString
		status      string
		paidAt      sql.NullString
		createdRaw  string
	)
	if err := sc.Scan(
		&d.ID, &d.StatementID, &d.TenantID, &d.WorkID, &workTitle, &partyType,
		&writerID, &publisherID, &partyName, &d.RightType, &territory, &period, &currency,
		&gross, &share, &net, &adjustment, &rowNumbers, &status, &paidAt, &createdRaw,
	); err != nil {
		return nil, err
	}
	d.WorkTitle = workTitle.String
	d.PartyType = distribution.PartyType(partyType)
	d.WriterID = writerID.String
	d.PublisherID = publisherID.String
	d.PartyName = partyName.String
	d.Territory = territory.String
	d.Period = period.String
	d.Currency = currency.String
	d.Gross = parseDecimal(gross)
	d.SharePercent = parseDecimal(share)
	d.Net = parseDecimal(net)
	d.RoundingAdjustment = parseDecimal(adjustment)
	if err := decodeJSON(rowNumbers, &d.RowNumbers); err != nil {
		return nil, fmt.Errorf("decode row numbers: %w", err)
	}
	d.Status = distribution.PayoutStatus(status)
	d.PaidAt = parseNullTime(paidAt)
	if created, err := parseTimeString(createdRaw); err == nil {
		d.CreatedAt = created
	}
	return &d, nil
}

// ReplaceDistributions swaps a statement's distributions and summary in one
// transaction.
func (s *Store) ReplaceDistributions(ctx context.Context, statementID string, distributions []distribution.Distribution, summary distribution.Summary) error {
	encodedSummary, err := encodeJSON(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"distributions", "distribution_summaries"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE statement_id = ?", statementID); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		insert, err := tx.PrepareContext(ctx, "INSERT INTO distributions ("+distributionColumns+") VALUES ("+makePlaceholders(21)+")")
		if err != nil {
			return fmt.Errorf("prepare distribution insert: %w", err)
		}
		defer insert.Close()
		for _, d := range distributions {
			rowNumbers, err := encodeJSON(d.RowNumbers)
			if err != nil {
				return fmt.Errorf("encode row numbers: %w", err)
			}
			if _, err := insert.ExecContext(ctx,
				d.ID, statementID, d.TenantID, d.WorkID, nullableString(d.WorkTitle), string(d.PartyType),
				nullableString(d.WriterID), nullableString(d.PublisherID), nullableString(d.PartyName),
				d.RightType, nullableString(d.Territory), nullableString(d.Period), nullableString(d.Currency),
				d.Gross.String(), d.SharePercent.String(), d.Net.String(), d.RoundingAdjustment.String(),
				rowNumbers, string(d.Status), nullableTime(d.PaidAt), formatTime(d.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert distribution for work %s: %w", d.WorkID, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO distribution_summaries (statement_id, summary_json, calculated_at) VALUES (?, ?, ?)",
			statementID, encodedSummary, formatTime(summary.CalculatedAt),
		); err != nil {
			return fmt.Errorf("insert summary: %w", err)
		}
		return nil
	})
}

// ListDistributions returns distributions matching filter.
func (s *Store) ListDistributions(ctx context.Context, filter distribution.Filter) ([]distribution.Distribution, error) {
	var (
		clauses []string
		args    []any
	)
	for _, f := range []struct {
		column string
		value  string
	}{
		{"statement_id", filter.StatementID},
		{"tenant_id", filter.TenantID},
		{"work_id", filter.WorkID},
		{"writer_id", filter.WriterID},
		{"publisher_id", filter.PublisherID},
		{"status", string(filter.Status)},
	} {
		if f.value != "" {
			clauses = append(clauses, f.column+" = ?")
			args = append(args, f.value)
		}
	}
	query := "SELECT " + distributionColumns + " FROM distributions"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY statement_id, work_id, right_type, party_type DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()
	var out []distribution.Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// GetDistributionSummary returns the stored summary for a statement.
func (s *Store) GetDistributionSummary(ctx context.Context, statementID string) (*distribution.Summary, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT summary_json FROM distribution_summaries WHERE statement_id = ?", statementID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get distribution summary", "distribution summary for statement", statementID)
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution summary: %w", err)
	}
	var summary distribution.Summary
	if err := decodeJSON(raw, &summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &summary, nil
}

// MarkDistributionsPaid flags pending distributions as paid.
func (s *Store) MarkDistributionsPaid(ctx context.Context, ids []string, paidAt time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := []any{string(distribution.PayoutPaid), formatTime(paidAt)}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, string(distribution.PayoutPending))
	res, err := s.execWithRetry(ctx,
		"UPDATE distributions SET status = ?, paid_at = ? WHERE id IN ("+makePlaceholders(len(ids))+") AND status = ?",
		args...)
	if err != nil {
		return 0, fmt.Errorf("mark distributions paid: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
