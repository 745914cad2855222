// internal/store/storetest/storetest.go
package storetest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"libraledger/internal/store"
)

// Open returns a migrated store for tests. It uses TEST_DATABASE_URL when
// set (Postgres) and a fresh SQLite file in t.TempDir() otherwise.
func Open(t testing.TB) *store.DB {
	t.Helper()
	ctx := context.Background()

	driver, dsn := store.DriverSQLite, filepath.Join(t.TempDir(), "ledger.db")
	if url := os.Getenv("TEST_DATABASE_URL"); url != "" {
		driver, dsn = store.DriverPostgres, url
	}

	db, err := store.Open(ctx, driver, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return db
}
