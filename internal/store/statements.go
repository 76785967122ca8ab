package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"royalties/internal/services"
	"royalties/internal/statement"
)

const statementColumns = "id, tenant_id, source, file_name, format, status, currency, period, total_gross, row_count, error_message, stats_json, created_at, updated_at, processed_at"

func scanStatement(row scanner) (*statement.Statement, error) {
	var (
		stmt        statement.Statement
		source      sql.NullString
		fileName    sql.NullString
		format      sql.NullString
		status      string
		currency    sql.NullString
		period      sql.NullString
		totalGross  sql.NullString
		errorMsg    sql.NullString
		statsJSON   sql.NullString
		createdRaw  string
		updatedRaw  string
		processedAt sql.NullString
	)
	if err := row.Scan(
		&stmt.ID,
		&stmt.TenantID,
		&source,
		&fileName,
		&format,
		&status,
		&currency,
		&period,
		&totalGross,
		&stmt.RowCount,
		&errorMsg,
		&statsJSON,
		&createdRaw,
		&updatedRaw,
		&processedAt,
	); err != nil {
		return nil, err
	}
	stmt.Source = source.String
	stmt.FileName = fileName.String
	stmt.Format = statement.Format(format.String)
	stmt.Status = statement.Status(status)
	stmt.Currency = currency.String
	stmt.Period = period.String
	stmt.TotalGross = parseDecimal(totalGross)
	stmt.ErrorMessage = errorMsg.String
	if err := decodeJSON(statsJSON, &stmt.Stats); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		stmt.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		stmt.UpdatedAt = updated
	}
	stmt.ProcessedAt = parseNullTime(processedAt)
	return &stmt, nil
}

// CreateStatement inserts a new statement record including its file payload.
func (s *Store) CreateStatement(ctx context.Context, stmt *statement.Statement) error {
	if stmt == nil || strings.TrimSpace(stmt.ID) == "" {
		return services.Wrap(services.ErrValidation, "store", "create statement", "statement id required", nil)
	}
	now := time.Now().UTC()
	if stmt.CreatedAt.IsZero() {
		stmt.CreatedAt = now
	}
	stmt.UpdatedAt = now
	stats, err := encodeJSON(stmt.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	_, err = s.execWithRetry(ctx, `INSERT INTO statements (
		id, tenant_id, source, file_name, format, status, currency, period, total_gross,
		row_count, error_message, stats_json, file_data, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stmt.ID,
		stmt.TenantID,
		nullableString(stmt.Source),
		nullableString(stmt.FileName),
		nullableString(string(stmt.Format)),
		string(stmt.Status),
		nullableString(stmt.Currency),
		nullableString(stmt.Period),
		stmt.TotalGross.String(),
		stmt.RowCount,
		nullableString(stmt.ErrorMessage),
		stats,
		stmt.File,
		formatTime(stmt.CreatedAt),
		formatTime(stmt.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert statement: %w", err)
	}
	return nil
}

// GetStatement returns a statement with its file payload.
func (s *Store) GetStatement(ctx context.Context, id string) (*statement.Statement, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT "+statementColumns+", file_data FROM statements WHERE id = ?", id)
	var file []byte
	stmt, err := scanStatement(scannerFunc(func(dest ...any) error {
		return row.Scan(append(dest, &file)...)
	}))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get statement", "statement", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get statement: %w", err)
	}
	stmt.File = file
	return stmt, nil
}

type scannerFunc func(dest ...any) error

func (f scannerFunc) Scan(dest ...any) error { return f(dest...) }

// ListStatements returns statements newest first. An empty tenant lists all.
func (s *Store) ListStatements(ctx context.Context, tenantID string, statuses []statement.Status, limit int) ([]statement.Statement, error) {
	query := "SELECT " + statementColumns + " FROM statements"
	var (
		clauses []string
		args    []any
	)
	if tenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, tenantID)
	}
	if len(statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(statuses))+")")
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list statements: %w", err)
	}
	defer rows.Close()

	var out []statement.Statement
	for rows.Next() {
		stmt, err := scanStatement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		out = append(out, *stmt)
	}
	return out, rows.Err()
}

// UpdateStatementStatus moves a statement to status. Terminal statuses stamp
// processed_at; message replaces the stored error message.
func (s *Store) UpdateStatementStatus(ctx context.Context, id string, status statement.Status, message string) error {
	now := time.Now().UTC()
	var processedAt *time.Time
	if status.Terminal() {
		processedAt = &now
	}
	res, err := s.execWithRetry(ctx, `UPDATE statements
		SET status = ?, error_message = ?, updated_at = ?, processed_at = COALESCE(?, processed_at)
		WHERE id = ?`,
		string(status), nullableString(message), formatTime(now), nullableTime(processedAt), id)
	if err != nil {
		return fmt.Errorf("update statement status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("update statement status", "statement", id)
	}
	return nil
}

// SaveStatementStats stores the run statistics.
func (s *Store) SaveStatementStats(ctx context.Context, id string, stats statement.Stats) error {
	encoded, err := encodeJSON(stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if _, err := s.execWithRetry(ctx, "UPDATE statements SET stats_json = ?, updated_at = ? WHERE id = ?",
		encoded, formatTime(time.Now()), id); err != nil {
		return fmt.Errorf("save statement stats: %w", err)
	}
	return nil
}

// DeleteStatement removes a statement and everything derived from it.
func (s *Store) DeleteStatement(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := clearDerived(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM jobs WHERE statement_id = ?", id); err != nil {
			return fmt.Errorf("delete jobs: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM statements WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete statement: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	return deleted, err
}

// clearDerived removes rows, review items, and distributions of a statement.
func clearDerived(ctx context.Context, tx *sql.Tx, statementID string) error {
	for _, table := range []string{"review_items", "distributions", "distribution_summaries", "statement_rows"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE statement_id = ?", statementID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
