package database

import (
	"context"
	"fmt"

	"github.com/yourusername/forecast-ledger/internal/config"
)

// Initialize opens a PostgreSQL pool, applying migrations first when
// database.auto_migrate is set.
func Initialize(ctx context.Context, cfg *config.Config) (*DB, error) {
	if cfg.Database.AutoMigrate {
		if err := MigrateUp(&cfg.Database); err != nil {
			return nil, fmt.Errorf("failed to migrate postgres schema: %w", err)
		}
	}

	return NewDB(ctx, &cfg.Database)
}

// InitializeSQLite opens the SQLite store described by cfg.
func InitializeSQLite(ctx context.Context, cfg *config.Config) (*SQLiteDB, error) {
	return OpenSQLite(ctx, SQLiteOptions{
		Path:        cfg.Database.Path,
		AutoMigrate: cfg.Database.AutoMigrate,
	})
}
