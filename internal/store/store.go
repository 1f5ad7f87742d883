// Package store persists Watchdeck's relational state: users, invites,
// API keys, watch history, comments, ratings, and request logs. It speaks
// plain SQL through sqlx and supports SQLite (default), PostgreSQL, and
// MySQL backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the application database.
type Store struct {
	db *sqlx.DB
}

// Open connects to the database named by driver ("sqlite", "postgres",
// "mysql") and runs migrations. For sqlite, dsn is a data directory; pass
// empty for in-memory.
func Open(driver, dsn string) (*Store, error) {
	var db *sqlx.DB
	var err error

	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = ":memory:"
		} else {
			if err := os.MkdirAll(dsn, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(dsn, "watchdeck.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		}
		db, err = sqlx.Connect("sqlite", dsn)
		if err == nil {
			db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
			if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
				return nil, fmt.Errorf("enable foreign keys: %w", err)
			}
		}
	case "postgres":
		db, err = sqlx.Connect("pgx", dsn)
	case "mysql":
		db, err = sqlx.Connect("mysql", dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind translates ?-style placeholders to the connected driver's bindvar
// syntax so queries stay portable across backends.
func (s *Store) rebind(q string) string {
	return s.db.Rebind(q)
}
