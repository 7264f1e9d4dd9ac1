// Package sqlite provides a coresync.Session backed by SQLite, adapted from
// the connection-pool-plus-statement-cache shape of the teacher project's
// internal/db/sqlite store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pavelkucherov/CoreSync/internal/coresync"
)

// Config holds connection parameters for a SQLite-backed Session.
type Config struct {
	Path     string
	MaxConns int
	WALMode  bool
}

// Session implements coresync.Session over a pooled *sql.DB, caching
// prepared statements the same way the teacher's Store.GetStmt does. The
// cache serves statements run through Session's own ExecContext and
// QueryContext; statements run inside a transaction from BeginTx (which is
// how coresync executes its templates) are not cached.
type Session struct {
	db        *sql.DB
	stmtCache map[string]*sql.Stmt
	stmtMu    sync.RWMutex
}

// Open creates a new SQLite-backed Session.
func Open(cfg Config) (*Session, error) {
	connStr := cfg.Path
	if cfg.WALMode {
		connStr += "?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON"
	} else {
		connStr += "?_foreign_keys=ON"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Session{db: db, stmtCache: make(map[string]*sql.Stmt)}, nil
}

// Close closes the pool and all cached statements.
func (s *Session) Close() error {
	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()
	for _, stmt := range s.stmtCache {
		_ = stmt.Close()
	}
	s.stmtCache = nil
	return s.db.Close()
}

// Dialect implements coresync.Session.
func (s *Session) Dialect() string { return "sqlite" }

func (s *Session) getStmt(query string) (*sql.Stmt, error) {
	s.stmtMu.RLock()
	stmt, ok := s.stmtCache[query]
	s.stmtMu.RUnlock()
	if ok {
		return stmt, nil
	}

	s.stmtMu.Lock()
	defer s.stmtMu.Unlock()
	if stmt, ok := s.stmtCache[query]; ok {
		return stmt, nil
	}
	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	s.stmtCache[query] = stmt
	return stmt, nil
}

// ExecContext implements coresync.Session.
func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	stmt, err := s.getStmt(query)
	if err != nil {
		return s.db.ExecContext(ctx, query, args...)
	}
	return stmt.ExecContext(ctx, args...)
}

// QueryContext implements coresync.Session.
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	stmt, err := s.getStmt(query)
	if err != nil {
		return s.db.QueryContext(ctx, query, args...)
	}
	return stmt.QueryContext(ctx, args...)
}

// BeginTx implements coresync.Session. *sql.Tx already satisfies
// coresync.Txn, so no adapter type is needed.
func (s *Session) BeginTx(ctx context.Context) (coresync.Txn, error) {
	return s.db.BeginTx(ctx, nil)
}

// DB returns the underlying *sql.DB for use by gormschema or direct
// diagnostics. Use sparingly - prefer Session's own methods.
func (s *Session) DB() *sql.DB { return s.db }
