// Package postgres provides a coresync.Session backed by PostgreSQL. It
// supports either of the two Postgres drivers the teacher project depends
// on - lib/pq and pgx's database/sql shim - selected by Config.Driver, the
// same way an application might let deployment configuration pick between
// them without changing any calling code.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"

	"github.com/pavelkucherov/CoreSync/internal/coresync"
)

// Driver names the registered database/sql driver to use.
type Driver string

const (
	DriverLibPQ Driver = "postgres" // github.com/lib/pq
	DriverPGX   Driver = "pgx"      // github.com/jackc/pgx/v5/stdlib
)

// Config holds connection parameters for a Postgres-backed Session.
type Config struct {
	DSN      string
	Driver   Driver // defaults to DriverPGX
	MaxConns int
}

// Session implements coresync.Session over a pooled *sql.DB.
type Session struct {
	db *sql.DB
}

// Open creates a new Postgres-backed Session.
func Open(cfg Config) (*Session, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPGX
	}

	db, err := sql.Open(string(driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 8
	}
	db.SetMaxOpenConns(maxConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Session{db: db}, nil
}

// Close closes the pool.
func (s *Session) Close() error { return s.db.Close() }

// Dialect implements coresync.Session.
func (s *Session) Dialect() string { return "postgres" }

// ExecContext implements coresync.Session.
func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

// QueryContext implements coresync.Session.
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// BeginTx implements coresync.Session.
func (s *Session) BeginTx(ctx context.Context) (coresync.Txn, error) {
	return s.db.BeginTx(ctx, nil)
}

// DB returns the underlying *sql.DB, used by internal/store/gormschema to
// hand GORM the same pool rather than opening a second one.
func (s *Session) DB() *sql.DB { return s.db }
