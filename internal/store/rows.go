package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"royalties/internal/statement"
)

const rowColumns = "statement_id, row_number, raw_json, title, writer, performer, isrc, iswc, work_code, normalized_title, normalized_writers_json, normalized_performer, normalized_isrc, normalized_iswc, normalized_work_code, amount, currency, territory, usage_type, period, right_type, match_status, matched_work_id, match_confidence, match_method"

func scanRow(sc scanner) (*statement.Row, error) {
	var (
		row         statement.Row
		rawJSON     sql.NullString
		title       sql.NullString
		writer      sql.NullString
		performer   sql.NullString
		isrc        sql.NullString
		iswc        sql.NullString
		workCode    sql.NullString
		normTitle   sql.NullString
		normWriters sql.NullString
		normPerf    sql.NullString
		normISRC    sql.NullString
		normISWC    sql.NullString
		normCode    sql.NullString
		amount      sql.NullString
		currency    sql.NullString
		territory   sql.NullString
		usageType   sql.NullString
		period      sql.NullString
		rightType   sql.NullString
		matchStatus sql.NullString
		matchedWork sql.NullString
		confidence  sql.NullFloat64
		matchMethod sql.NullString
	)
	if err := sc.Scan(
		&row.StatementID, &row.RowNumber, &rawJSON,
		&title, &writer, &performer, &isrc, &iswc, &workCode,
		&normTitle, &normWriters, &normPerf, &normISRC, &normISWC, &normCode,
		&amount, &currency, &territory, &usageType, &period, &rightType,
		&matchStatus, &matchedWork, &confidence, &matchMethod,
	); err != nil {
		return nil, err
	}
	if err := decodeJSON(rawJSON, &row.Raw); err != nil {
		return nil, fmt.Errorf("decode raw fields: %w", err)
	}
	if err := decodeJSON(normWriters, &row.NormalizedWriters); err != nil {
		return nil, fmt.Errorf("decode writers: %w", err)
	}
	row.Title = title.String
	row.Writer = writer.String
	row.Performer = performer.String
	row.ISRC = isrc.String
	row.ISWC = iswc.String
	row.WorkCode = workCode.String
	row.NormalizedTitle = normTitle.String
	row.NormalizedPerformer = normPerf.String
	row.NormalizedISRC = normISRC.String
	row.NormalizedISWC = normISWC.String
	row.NormalizedWorkCode = normCode.String
	row.Amount = parseDecimal(amount)
	row.Currency = currency.String
	row.Territory = territory.String
	row.UsageType = usageType.String
	row.Period = period.String
	row.RightType = rightType.String
	row.MatchStatus = statement.MatchStatus(matchStatus.String)
	row.MatchedWorkID = matchedWork.String
	row.MatchConfidence = confidence.Float64
	row.MatchMethod = statement.MatchMethod(matchMethod.String)
	return &row, nil
}

// ReplaceRows discards everything previously derived from the statement
// (rows, review items, distributions) and inserts rows, updating the
// statement's row count and gross in the same transaction.
func (s *Store) ReplaceRows(ctx context.Context, statementID string, rows []statement.Row) error {
	totals := statement.Summarize(rows)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := clearDerived(ctx, tx, statementID); err != nil {
			return err
		}
		insert, err := tx.PrepareContext(ctx, "INSERT INTO statement_rows ("+rowColumns+") VALUES ("+makePlaceholders(25)+")")
		if err != nil {
			return fmt.Errorf("prepare row insert: %w", err)
		}
		defer insert.Close()
		for i := range rows {
			row := &rows[i]
			raw, err := encodeJSON(row.Raw)
			if err != nil {
				return fmt.Errorf("encode row %d: %w", row.RowNumber, err)
			}
			writers, err := encodeJSON(row.NormalizedWriters)
			if err != nil {
				return fmt.Errorf("encode row %d writers: %w", row.RowNumber, err)
			}
			if _, err := insert.ExecContext(ctx,
				statementID, row.RowNumber, raw,
				nullableString(row.Title), nullableString(row.Writer), nullableString(row.Performer),
				nullableString(row.ISRC), nullableString(row.ISWC), nullableString(row.WorkCode),
				nullableString(row.NormalizedTitle), writers, nullableString(row.NormalizedPerformer),
				nullableString(row.NormalizedISRC), nullableString(row.NormalizedISWC), nullableString(row.NormalizedWorkCode),
				row.Amount.String(), nullableString(row.Currency), nullableString(row.Territory),
				nullableString(row.UsageType), nullableString(row.Period), nullableString(row.RightType),
				nullableString(string(row.MatchStatus)), nullableString(row.MatchedWorkID),
				row.MatchConfidence, nullableString(string(row.MatchMethod)),
			); err != nil {
				return fmt.Errorf("insert row %d: %w", row.RowNumber, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE statements SET row_count = ?, total_gross = ?, stats_json = NULL, updated_at = ? WHERE id = ?",
			totals.RowCount, totals.TotalGross.String(), formatTime(time.Now()), statementID,
		); err != nil {
			return fmt.Errorf("update statement totals: %w", err)
		}
		return nil
	})
}

// SaveMatchResults writes the match fields of rows.
func (s *Store) SaveMatchResults(ctx context.Context, statementID string, rows []statement.Row) error {
	if len(rows) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		update, err := tx.PrepareContext(ctx, `UPDATE statement_rows
			SET match_status = ?, matched_work_id = ?, match_confidence = ?, match_method = ?
			WHERE statement_id = ? AND row_number = ?`)
		if err != nil {
			return fmt.Errorf("prepare match update: %w", err)
		}
		defer update.Close()
		for _, row := range rows {
			if _, err := update.ExecContext(ctx,
				nullableString(string(row.MatchStatus)), nullableString(row.MatchedWorkID),
				row.MatchConfidence, nullableString(string(row.MatchMethod)),
				statementID, row.RowNumber,
			); err != nil {
				return fmt.Errorf("update row %d: %w", row.RowNumber, err)
			}
		}
		return nil
	})
}

// ListRows returns a statement's rows ordered by row number.
func (s *Store) ListRows(ctx context.Context, statementID string) ([]statement.Row, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+rowColumns+" FROM statement_rows WHERE statement_id = ? ORDER BY row_number", statementID)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rows.Close()

	var out []statement.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

// CountRowsByMatchStatus groups a statement's rows by match status.
func (s *Store) CountRowsByMatchStatus(ctx context.Context, statementID string) (map[statement.MatchStatus]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT COALESCE(match_status, ''), COUNT(1) FROM statement_rows WHERE statement_id = ? GROUP BY 1", statementID)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	defer rows.Close()
	counts := make(map[statement.MatchStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[statement.MatchStatus(status)] = count
	}
	return counts, rows.Err()
}
