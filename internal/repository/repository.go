package repository

import (
	"context"
	"fmt"

	"github.com/yourusername/forecast-ledger/internal/config"
	"github.com/yourusername/forecast-ledger/internal/database"
)

// Repositories holds all repository implementations together with the
// handle that backs them.
type Repositories struct {
	Forecast ForecastRepository

	ping  func(context.Context) error
	close func() error
}

// NewRepositories creates repositories backed by PostgreSQL
func NewRepositories(db *database.DB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Forecast: NewPostgresForecastRepository(db),
		ping:     db.Ping,
		close:    db.Close,
	}, nil
}

// NewSQLiteRepositories creates repositories backed by SQLite
func NewSQLiteRepositories(db *database.SQLiteDB) (*Repositories, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &Repositories{
		Forecast: NewSQLiteForecastRepository(db),
		ping:     db.Ping,
		close:    db.Close,
	}, nil
}

// Open connects to the configured backend and returns its repositories.
func Open(ctx context.Context, cfg *config.Config) (*Repositories, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := database.Initialize(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewRepositories(db)
	case "sqlite":
		db, err := database.InitializeSQLite(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewSQLiteRepositories(db)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// Ping verifies the backing store is reachable.
func (r *Repositories) Ping(ctx context.Context) error {
	return r.ping(ctx)
}

// Close releases the backing store.
func (r *Repositories) Close() error {
	return r.close()
}
