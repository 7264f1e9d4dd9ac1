package coresync

import (
	"context"
	"database/sql"
)

// Tx is the minimal statement-execution surface coresync needs inside a
// transaction. database/sql's *sql.Tx already satisfies this, so a Session
// backed by *sql.DB needs no adapter code beyond BeginTx itself.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Txn is a Tx that can be committed or rolled back. *sql.Tx satisfies this
// directly.
type Txn interface {
	Tx
	Commit() error
	Rollback() error
}

// Session is the generic database session this package assumes as an
// external collaborator: something that can execute parameterized
// statements and open transactions. internal/store provides concrete
// SQLite/Postgres implementations; coresync never imports a driver
// directly.
type Session interface {
	// BeginTx starts a new transaction. GetInitialSet, GetIncrementalChanges
	// and ApplyChanges each run under exactly one such transaction and close
	// it before returning; Initialize does not open one.
	BeginTx(ctx context.Context) (Txn, error)

	// ExecContext runs a statement outside of any transaction, used only by
	// the Change-Log Installer during Initialize where no conflict
	// semantics apply.
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)

	// QueryContext runs a query outside of any transaction.
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)

	// Dialect reports which SQL dialect this session speaks ("sqlite" or
	// "postgres"). The Schema Introspector and Query Template Builder use it
	// to pick dialect-specific DDL/DML (PRAGMA table_info vs
	// information_schema, trigger syntax, upsert syntax).
	Dialect() string
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error or panic. The commit happens after fn returns so that
// the final max(id) read fn performs is part of the same transaction as any
// writes it made — the returned anchor must name exactly the state the
// writes produced, not a state some concurrent writer slips in between.
func withTx(ctx context.Context, s Session, fn func(tx Txn) error) (err error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return driverErr("begin transaction", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err = tx.Commit(); err != nil {
		return driverErr("commit transaction", err)
	}
	return nil
}
