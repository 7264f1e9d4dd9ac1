package coresync

import (
	"fmt"
	"regexp"
	"strings"
)

// templateSet holds the three precomputed, parameterized statements for one
// table. Building them is part of Initialize and is memoized on the
// Provider afterward.
type templateSet struct {
	insertSQL string
	updateSQL string
	deleteSQL string

	// insertOrder/updateOrder/deleteOrder record, for dialects whose driver
	// needs positional ($1, $2, ...) rather than named binding, the
	// parameter name for each positional slot in the order it appears in
	// the rewritten SQL (duplicates included).
	insertOrder []string
	updateOrder []string
	deleteOrder []string
}

var namedParamRe = regexp.MustCompile(`@[A-Za-z_][A-Za-z0-9_]*`)

// rewriteForDialect leaves @name tokens as-is for SQLite (mattn/go-sqlite3
// binds sql.Named args by matching the "@name" token in the query text
// directly) and rewrites them to positional $1, $2, ... for Postgres, whose
// drivers (lib/pq, pgx's database/sql shim) only understand positional
// placeholders. The returned order slice is nil for SQLite.
func rewriteForDialect(dialect, sql string) (string, []string) {
	if dialect != dialectPostgres {
		return sql, nil
	}
	var order []string
	n := 0
	rewritten := namedParamRe.ReplaceAllStringFunc(sql, func(tok string) string {
		n++
		order = append(order, tok[1:]) // strip leading '@'
		return fmt.Sprintf("$%d", n)
	})
	return rewritten, order
}

// buildTemplates builds the insert/update/delete templates for t. The
// conflict predicate shared by update and delete compares the change-log's
// PK fingerprint against a value computed app-side by fingerprint() and
// bound as @sync_fingerprint, rather than re-deriving the encoding in SQL a
// second time per dialect — the encoding in fingerprint.go is the single
// source of truth for how a row's primary key maps to a change-log PK
// string.
func buildTemplates(dialect string, t *TableDescriptor) (*templateSet, error) {
	pk := t.primaryKeyColumns()
	if len(pk) == 0 {
		return nil, &ConfigurationError{Table: t.Name, Reason: "no PK columns: cannot build conflict-aware templates"}
	}

	var nonPK []ColumnDescriptor
	for _, c := range t.Columns {
		if !c.IsPrimaryKey {
			nonPK = append(nonPK, c)
		}
	}

	qTable := quoteIdent(t.Name)
	qn := t.QualifiedName()

	// INSERT
	colNames := make([]string, len(t.Columns))
	colParams := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		colNames[i] = quoteIdent(c.Name)
		colParams[i] = "@" + paramName(c.Name)
	}
	var insertSQL string
	if dialect == dialectPostgres {
		insertSQL = fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING`,
			qTable, strings.Join(colNames, ", "), strings.Join(colParams, ", "))
	} else {
		insertSQL = fmt.Sprintf(`INSERT OR IGNORE INTO %s (%s) VALUES (%s)`,
			qTable, strings.Join(colNames, ", "), strings.Join(colParams, ", "))
	}

	pkMatch := make([]string, len(pk))
	for i, c := range pk {
		pkMatch[i] = fmt.Sprintf("%s = @%s", quoteIdent(c.Name), paramName(c.Name))
	}
	whereSuffix := fmt.Sprintf(
		`%s AND (@sync_force_write = 1 OR NOT EXISTS (
			SELECT 1 FROM %s WHERE TBL = '%s' AND PK = @sync_fingerprint AND ID > @last_sync_version
		))`, strings.Join(pkMatch, " AND "), changeLogTable, qn)

	// UPDATE
	setClauses := make([]string, len(nonPK))
	for i, c := range nonPK {
		setClauses[i] = fmt.Sprintf("%s = @%s", quoteIdent(c.Name), paramName(c.Name))
	}
	var updateSQL string
	if len(setClauses) == 0 {
		// A table with only PK columns has nothing to SET; the update is a
		// structural no-op but must still participate in conflict checking.
		updateSQL = fmt.Sprintf(`UPDATE %s SET %s = %s WHERE %s`,
			qTable, quoteIdent(pk[0].Name), quoteIdent(pk[0].Name), whereSuffix)
	} else {
		updateSQL = fmt.Sprintf(`UPDATE %s SET %s WHERE %s`,
			qTable, strings.Join(setClauses, ", "), whereSuffix)
	}

	// DELETE
	deleteSQL := fmt.Sprintf(`DELETE FROM %s WHERE %s`, qTable, whereSuffix)

	insertSQL, insertOrder := rewriteForDialect(dialect, insertSQL)
	updateSQL, updateOrder := rewriteForDialect(dialect, updateSQL)
	deleteSQL, deleteOrder := rewriteForDialect(dialect, deleteSQL)

	return &templateSet{
		insertSQL: insertSQL, updateSQL: updateSQL, deleteSQL: deleteSQL,
		insertOrder: insertOrder, updateOrder: updateOrder, deleteOrder: deleteOrder,
	}, nil
}
