package testsupport

import (
	"context"
	"testing"

	"royalties/internal/catalog"
	"royalties/internal/config"
	"royalties/internal/statement"
	"royalties/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewStatement inserts an uploaded statement with rows for tests.
func NewStatement(t testing.TB, st *store.Store, id, tenantID string, rows []statement.Row) *statement.Statement {
	t.Helper()

	stmt := &statement.Statement{
		ID:       id,
		TenantID: tenantID,
		FileName: id + ".csv",
		Format:   statement.FormatCSV,
		Status:   statement.StatusUploaded,
		Currency: "USD",
	}
	ctx := context.Background()
	if err := st.CreateStatement(ctx, stmt); err != nil {
		t.Fatalf("store.CreateStatement: %v", err)
	}
	if len(rows) > 0 {
		if err := st.ReplaceRows(ctx, id, rows); err != nil {
			t.Fatalf("store.ReplaceRows: %v", err)
		}
	}
	return stmt
}

// SeedCatalog stores works for a tenant.
func SeedCatalog(t testing.TB, st *store.Store, tenantID string, works []catalog.Work) {
	t.Helper()

	if _, err := st.UpsertWorks(context.Background(), tenantID, works); err != nil {
		t.Fatalf("store.UpsertWorks: %v", err)
	}
}
