package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteOptions holds settings for the embedded SQLite store.
type SQLiteOptions struct {
	// Path is the database file. ":memory:" is not supported because
	// migrations run on a separate connection.
	Path string

	// BusyTimeout sets how long to wait when the database is locked.
	BusyTimeout time.Duration

	// AutoMigrate applies pending migrations before the pool opens.
	AutoMigrate bool
}

// SQLiteDB wraps a database/sql handle over modernc.org/sqlite.
// The pool holds a single connection: SQLite has one writer, and
// serializing here keeps insert-if-absent and attach atomic without
// SQLITE_BUSY retries.
type SQLiteDB struct {
	conn *sql.DB
}

// OpenSQLite opens (and optionally migrates) the SQLite database at opts.Path.
func OpenSQLite(ctx context.Context, opts SQLiteOptions) (*SQLiteDB, error) {
	if opts.Path == "" || opts.Path == ":memory:" {
		return nil, fmt.Errorf("sqlite requires a file path, got %q", opts.Path)
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if opts.AutoMigrate {
		mgr, err := NewSQLiteMigrationManager(opts.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create migration manager: %w", err)
		}
		if err := mgr.Up(); err != nil {
			_ = mgr.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		if err := mgr.Close(); err != nil {
			return nil, fmt.Errorf("failed to close migration manager: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)",
		opts.Path, opts.BusyTimeout.Milliseconds())

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to close database after ping error: %w (original error: %v)", closeErr, err)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteDB{conn: conn}, nil
}

// Conn returns the underlying *sql.DB.
func (db *SQLiteDB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies database connectivity
func (db *SQLiteDB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database handle.
func (db *SQLiteDB) Close() error {
	if db.conn == nil {
		return nil
	}
	return db.conn.Close()
}
