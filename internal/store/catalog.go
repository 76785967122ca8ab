package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"royalties/internal/catalog"
	"royalties/internal/services"
)

// LoadWorks returns every stored work for a tenant. It satisfies
// catalog.Loader.
func (s *Store) LoadWorks(ctx context.Context, tenantID string) ([]catalog.Work, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT id, code, title, iswc, alternate_titles_json,
		writers_json, publishers_json, recordings_json, embedding_json
		FROM catalog_works WHERE tenant_id = ? ORDER BY id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load works: %w", err)
	}
	defer rows.Close()

	var works []catalog.Work
	for rows.Next() {
		var (
			work       catalog.Work
			code       sql.NullString
			iswc       sql.NullString
			alternates sql.NullString
			writers    sql.NullString
			publishers sql.NullString
			recordings sql.NullString
			embedding  sql.NullString
		)
		if err := rows.Scan(&work.ID, &code, &work.Title, &iswc, &alternates, &writers, &publishers, &recordings, &embedding); err != nil {
			return nil, fmt.Errorf("scan work: %w", err)
		}
		work.TenantID = tenantID
		work.Code = code.String
		work.ISWC = iswc.String
		for _, field := range []struct {
			raw    sql.NullString
			target any
		}{
			{alternates, &work.AlternateTitles},
			{writers, &work.Writers},
			{publishers, &work.Publishers},
			{recordings, &work.Recordings},
			{embedding, &work.Embedding},
		} {
			if err := decodeJSON(field.raw, field.target); err != nil {
				return nil, fmt.Errorf("decode work %s: %w", work.ID, err)
			}
		}
		works = append(works, work)
	}
	return works, rows.Err()
}

// UpsertWorks inserts or replaces works for a tenant in one transaction.
func (s *Store) UpsertWorks(ctx context.Context, tenantID string, works []catalog.Work) (int, error) {
	if strings.TrimSpace(tenantID) == "" {
		return 0, services.Wrap(services.ErrValidation, "store", "upsert works", "tenant required", nil)
	}
	now := formatTime(time.Now())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		upsert, err := tx.PrepareContext(ctx, `INSERT INTO catalog_works (
			tenant_id, id, code, title, iswc, alternate_titles_json, writers_json,
			publishers_json, recordings_json, embedding_json, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			code = excluded.code,
			title = excluded.title,
			iswc = excluded.iswc,
			alternate_titles_json = excluded.alternate_titles_json,
			writers_json = excluded.writers_json,
			publishers_json = excluded.publishers_json,
			recordings_json = excluded.recordings_json,
			embedding_json = excluded.embedding_json,
			updated_at = excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("prepare work upsert: %w", err)
		}
		defer upsert.Close()
		for _, work := range works {
			if strings.TrimSpace(work.ID) == "" || strings.TrimSpace(work.Title) == "" {
				return services.Wrap(services.ErrValidation, "store", "upsert works", "work id and title required", nil)
			}
			encoded := make([]any, 0, 5)
			for _, value := range []any{work.AlternateTitles, work.Writers, work.Publishers, work.Recordings, work.Embedding} {
				v, err := encodeJSON(value)
				if err != nil {
					return fmt.Errorf("encode work %s: %w", work.ID, err)
				}
				encoded = append(encoded, v)
			}
			args := append([]any{tenantID, work.ID, nullableString(work.Code), work.Title, nullableString(work.ISWC)}, encoded...)
			args = append(args, now)
			if _, err := upsert.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("upsert work %s: %w", work.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(works), nil
}

// DeleteWorks removes the listed works, or the whole tenant catalog when ids is empty.
func (s *Store) DeleteWorks(ctx context.Context, tenantID string, ids []string) (int64, error) {
	query := "DELETE FROM catalog_works WHERE tenant_id = ?"
	args := []any{tenantID}
	if len(ids) > 0 {
		query += " AND id IN (" + makePlaceholders(len(ids)) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete works: %w", err)
	}
	return res.RowsAffected()
}

// CountWorks returns the number of works stored per tenant.
func (s *Store) CountWorks(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT tenant_id, COUNT(1) FROM catalog_works GROUP BY tenant_id")
	if err != nil {
		return nil, fmt.Errorf("count works: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			tenant string
			count  int
		)
		if err := rows.Scan(&tenant, &count); err != nil {
			return nil, err
		}
		counts[tenant] = count
	}
	return counts, rows.Err()
}
