package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// OpenTestSQLite creates a migrated SQLite database in a per-test temp
// directory. It is closed automatically when the test finishes.
func OpenTestSQLite(t testing.TB) *SQLiteDB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := OpenSQLite(ctx, SQLiteOptions{
		Path:        filepath.Join(t.TempDir(), "forecasts.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("warning: failed to close test database: %v", err)
		}
	})
	return db
}
