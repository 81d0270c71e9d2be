// Package storage persists media envelopes awaiting delivery.
//
// The SQLite backend uses modernc.org/sqlite (pure Go, no CGO) in WAL mode and
// runs schema migrations on open. A memory backend with the same semantics is
// used when no data path is configured.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// Register the pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// ErrEmptyPath is returned by OpenDB when no database path is given.
var ErrEmptyPath = errors.New("storage: database path must not be empty")

// DB wraps a *sql.DB connection to a SQLite database.
type DB struct {
	inner *sql.DB
	path  string
}

// OpenDB opens (or creates) a SQLite database at path with WAL mode and a
// busy timeout, then applies pending migrations.
func OpenDB(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY churn.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{inner: sqlDB, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	return currentVersion(ctx, db.inner)
}
