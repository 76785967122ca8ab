package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"royalties/internal/review"
	"royalties/internal/statement"
)

const reviewColumns = "id, statement_id, tenant_id, row_number, status, match_status, confidence, suggested_work_id, candidates_json, assignee, skipped_by, resolution_json, created_at, updated_at"

func scanReviewItem(sc scanner) (*review.Item, error) {
	var (
		item        review.Item
		status      string
		matchStatus sql.NullString
		suggested   sql.NullString
		candidates  sql.NullString
		assignee    sql.NullString
		skippedBy   sql.NullString
		resolution  sql.NullString
		createdRaw  string
		updatedRaw  string
	)
	if err := sc.Scan(
		&item.ID, &item.StatementID, &item.TenantID, &item.RowNumber, &status,
		&matchStatus, &item.Confidence, &suggested, &candidates,
		&assignee, &skippedBy, &resolution, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	item.Status = review.Status(status)
	item.MatchStatus = statement.MatchStatus(matchStatus.String)
	item.SuggestedWorkID = suggested.String
	item.Assignee = assignee.String
	item.SkippedBy = skippedBy.String
	if err := decodeJSON(candidates, &item.Candidates); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	if resolution.Valid {
		item.Resolution = &review.Resolution{}
		if err := decodeJSON(resolution, item.Resolution); err != nil {
			return nil, fmt.Errorf("decode resolution: %w", err)
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return &item, nil
}

// UpsertReviewItems writes items keyed by (statement, row). An existing
// pending item is refreshed in place; resolved items are left untouched.
// It returns the number of items written.
func (s *Store) UpsertReviewItems(ctx context.Context, items []review.Item) (int, error) {
	written := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		written = 0
		upsert, err := tx.PrepareContext(ctx, `INSERT INTO review_items (`+reviewColumns+`)
			VALUES (`+makePlaceholders(14)+`)
			ON CONFLICT(statement_id, row_number) DO UPDATE SET
				match_status = excluded.match_status,
				confidence = excluded.confidence,
				suggested_work_id = excluded.suggested_work_id,
				candidates_json = excluded.candidates_json,
				updated_at = excluded.updated_at
			WHERE review_items.status = 'pending'`)
		if err != nil {
			return fmt.Errorf("prepare review upsert: %w", err)
		}
		defer upsert.Close()
		for _, item := range items {
			candidates, err := encodeJSON(item.Candidates)
			if err != nil {
				return fmt.Errorf("encode candidates: %w", err)
			}
			res, err := upsert.ExecContext(ctx,
				item.ID, item.StatementID, item.TenantID, item.RowNumber, string(item.Status),
				nullableString(string(item.MatchStatus)), item.Confidence, nullableString(item.SuggestedWorkID),
				candidates, nullableString(item.Assignee), nullableString(item.SkippedBy), nil,
				formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
			)
			if err != nil {
				return fmt.Errorf("upsert review item for row %d: %w", item.RowNumber, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				written++
			}
		}
		return nil
	})
	return written, err
}

// GetReviewItem returns one item.
func (s *Store) GetReviewItem(ctx context.Context, id string) (*review.Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+reviewColumns+" FROM review_items WHERE id = ?", id)
	item, err := scanReviewItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("get review item", "review item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get review item: %w", err)
	}
	return item, nil
}

// ListReviewItems returns items matching filter, oldest first.
func (s *Store) ListReviewItems(ctx context.Context, filter review.Filter) ([]review.Item, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.StatementID != "" {
		clauses = append(clauses, "statement_id = ?")
		args = append(args, filter.StatementID)
	}
	if filter.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Assignee != "" {
		clauses = append(clauses, "assignee = ?")
		args = append(args, filter.Assignee)
	}
	query := "SELECT " + reviewColumns + " FROM review_items"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at, statement_id, row_number"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review items: %w", err)
	}
	defer rows.Close()
	var out []review.Item
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review item: %w", err)
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// ResolveReviewItem closes a pending item, writes match onto the row, and
// completes the statement once it has no pending items left. All of it
// happens in one transaction. It reports false when the item was not pending.
func (s *Store) ResolveReviewItem(ctx context.Context, id string, resolution review.Resolution, status review.Status, match review.RowMatch) (bool, error) {
	encoded, err := encodeJSON(resolution)
	if err != nil {
		return false, fmt.Errorf("encode resolution: %w", err)
	}
	var changed bool
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		changed = false
		now := formatTime(time.Now())
		res, err := tx.ExecContext(ctx,
			"UPDATE review_items SET status = ?, resolution_json = ?, updated_at = ? WHERE id = ? AND status = 'pending'",
			string(status), encoded, now, id)
		if err != nil {
			return fmt.Errorf("close review item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM review_items WHERE id = ?", id).Scan(&exists); err != nil {
				return fmt.Errorf("check review item: %w", err)
			}
			if exists == 0 {
				return notFound("resolve review item", "review item", id)
			}
			return nil
		}

		var (
			statementID string
			rowNumber   int
		)
		if err := tx.QueryRowContext(ctx, "SELECT statement_id, row_number FROM review_items WHERE id = ?", id).
			Scan(&statementID, &rowNumber); err != nil {
			return fmt.Errorf("load review item: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE statement_rows
			SET match_status = ?, matched_work_id = ?, match_confidence = ?, match_method = ?
			WHERE statement_id = ? AND row_number = ?`,
			string(match.Status), nullableString(match.WorkID), match.Confidence, nullableString(string(match.Method)),
			statementID, rowNumber,
		); err != nil {
			return fmt.Errorf("update row match: %w", err)
		}

		var pending int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(1) FROM review_items WHERE statement_id = ? AND status = 'pending'", statementID,
		).Scan(&pending); err != nil {
			return fmt.Errorf("count pending items: %w", err)
		}
		if pending == 0 {
			if _, err := tx.ExecContext(ctx,
				"UPDATE statements SET status = ?, updated_at = ?, processed_at = ? WHERE id = ? AND status = ?",
				string(statement.StatusCompleted), now, now, statementID, string(statement.StatusReview),
			); err != nil {
				return fmt.Errorf("complete statement: %w", err)
			}
		}
		changed = true
		return nil
	})
	return changed, err
}

// RecordReviewSkip notes who skipped a pending item without changing its status.
func (s *Store) RecordReviewSkip(ctx context.Context, id, by string) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE review_items SET skipped_by = ?, updated_at = ? WHERE id = ? AND status = 'pending'",
		by, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("record skip: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("record skip", "pending review item", id)
	}
	return nil
}

// AssignReviewItem sets an item's assignee.
func (s *Store) AssignReviewItem(ctx context.Context, id, assignee string) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE review_items SET assignee = ?, updated_at = ? WHERE id = ?",
		assignee, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("assign review item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("assign review item", "review item", id)
	}
	return nil
}

// CountReviewItems groups items by status, for one statement or all of them.
func (s *Store) CountReviewItems(ctx context.Context, statementID string) (map[review.Status]int, error) {
	query := "SELECT status, COUNT(1) FROM review_items"
	var args []any
	if statementID != "" {
		query += " WHERE statement_id = ?"
		args = append(args, statementID)
	}
	query += " GROUP BY status"
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("count review items: %w", err)
	}
	defer rows.Close()
	counts := make(map[review.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[review.Status(status)] = count
	}
	return counts, rows.Err()
}
