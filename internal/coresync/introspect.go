package coresync

import (
	"context"
	"fmt"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// introspect populates t.Columns with the column metadata discovered for
// the table. It fails with ConfigurationError if the table does not exist,
// and again if the table has no primary key or resolves to zero columns —
// both are treated as configuration errors rather than silently skipping
// the table later.
func introspect(ctx context.Context, s Session, t *TableDescriptor) error {
	var cols []ColumnDescriptor
	var err error

	switch s.Dialect() {
	case dialectSQLite:
		cols, err = introspectSQLite(ctx, s, t)
	case dialectPostgres:
		cols, err = introspectPostgres(ctx, s, t)
	default:
		return &ConfigurationError{Table: t.Name, Reason: fmt.Sprintf("unsupported dialect %q", s.Dialect())}
	}
	if err != nil {
		return err
	}

	if len(cols) == 0 {
		return &ConfigurationError{Table: t.Name, Reason: "table does not exist or has no columns"}
	}

	hasPK := false
	for _, c := range cols {
		if c.IsPrimaryKey {
			hasPK = true
			break
		}
	}
	if !hasPK {
		return &ConfigurationError{Table: t.Name, Reason: "table has no discoverable primary key"}
	}

	t.Columns = cols
	return nil
}

func introspectSQLite(ctx context.Context, s Session, t *TableDescriptor) ([]ColumnDescriptor, error) {
	rows, err := s.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(t.Name)))
	if err != nil {
		return nil, driverErr("introspect "+t.Name, err)
	}
	defer rows.Close()

	var cols []ColumnDescriptor
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notNull    int
			dfltValue  any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, driverErr("scan table_info", err)
		}
		cols = append(cols, ColumnDescriptor{Name: name, DeclaredType: ctype, IsPrimaryKey: pk > 0})
	}
	return cols, driverErr("iterate table_info", rows.Err())
}

func introspectPostgres(ctx context.Context, s Session, t *TableDescriptor) ([]ColumnDescriptor, error) {
	schema := t.Schema
	if schema == "" {
		schema = "public"
	}

	const colQuery = `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := s.QueryContext(ctx, colQuery, schema, t.Name)
	if err != nil {
		return nil, driverErr("introspect "+t.Name, err)
	}
	defer rows.Close()

	cols := make(map[string]*ColumnDescriptor)
	var order []string
	for rows.Next() {
		var name, dtype string
		if err := rows.Scan(&name, &dtype); err != nil {
			return nil, driverErr("scan information_schema.columns", err)
		}
		cols[name] = &ColumnDescriptor{Name: name, DeclaredType: dtype}
		order = append(order, name)
	}
	if err := rows.Err(); err != nil {
		return nil, driverErr("iterate information_schema.columns", err)
	}

	const pkQuery = `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1 AND tc.table_name = $2`

	pkRows, err := s.QueryContext(ctx, pkQuery, schema, t.Name)
	if err != nil {
		return nil, driverErr("introspect primary key for "+t.Name, err)
	}
	defer pkRows.Close()

	for pkRows.Next() {
		var name string
		if err := pkRows.Scan(&name); err != nil {
			return nil, driverErr("scan key_column_usage", err)
		}
		if c, ok := cols[name]; ok {
			c.IsPrimaryKey = true
		}
	}
	if err := pkRows.Err(); err != nil {
		return nil, driverErr("iterate key_column_usage", err)
	}

	result := make([]ColumnDescriptor, 0, len(order))
	for _, name := range order {
		result = append(result, *cols[name])
	}
	return result, nil
}
