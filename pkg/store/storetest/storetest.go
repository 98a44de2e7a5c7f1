// Package storetest opens migrated throwaway databases for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"lexsign/custodian/pkg/store"
)

// Open returns a migrated SQLite store in t.TempDir(). The store is closed
// when the test ends.
func Open(t *testing.T, firmTables bool) *store.Store {
	t.Helper()
	return OpenDriver(t, store.DriverSQLite3, firmTables)
}

// OpenDriver is Open for a specific SQLite driver ("sqlite3" or "sqlite").
func OpenDriver(t *testing.T, driver string, firmTables bool) *store.Store {
	t.Helper()

	st, err := store.Open(&store.Config{
		Driver:       driver,
		DSN:          filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		BusyTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.Migrate(context.Background(), store.MigrateOptions{FirmTables: firmTables}); err != nil {
		t.Fatalf("Failed to migrate store: %v", err)
	}
	return st
}
