package coresync

import (
	"context"
	"fmt"
	"strings"
)

// changeLogTable is the sidecar log table name.
const changeLogTable = `__CORE_SYNC_CT`

// triggerName derives a stable, idempotent trigger name from the table name
// and operation, e.g. "__orders_ct-INSERT__".
func triggerName(table string, op ChangeType) string {
	var opName string
	switch op {
	case Insert:
		opName = "INSERT"
	case Update:
		opName = "UPDATE"
	case Delete:
		opName = "DELETE"
	}
	return fmt.Sprintf("__%s_ct-%s__", table, opName)
}

// installChangeLog creates the sidecar change-log table if absent. It is
// safe to call repeatedly.
func installChangeLog(ctx context.Context, s Session) error {
	var ddl string
	switch s.Dialect() {
	case dialectPostgres:
		ddl = `CREATE TABLE IF NOT EXISTS ` + changeLogTable + ` (
			ID BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			TBL TEXT NOT NULL,
			OP CHAR(1) NOT NULL,
			PK TEXT NOT NULL
		)`
	default:
		ddl = `CREATE TABLE IF NOT EXISTS ` + changeLogTable + ` (
			ID INTEGER PRIMARY KEY AUTOINCREMENT,
			TBL TEXT NOT NULL,
			OP CHAR NOT NULL,
			PK TEXT NOT NULL
		)`
	}
	if _, err := s.ExecContext(ctx, ddl); err != nil {
		return driverErr("create change-log table", err)
	}
	return nil
}

// installTriggers installs the three AFTER triggers for a table with at
// least one column and a discoverable primary key. The CREATE ... IF NOT
// EXISTS (SQLite) / CREATE OR REPLACE (Postgres) clauses make installation
// idempotent, so it can be re-run safely on every startup.
func installTriggers(ctx context.Context, s Session, t *TableDescriptor) error {
	pk := t.primaryKeyColumns()
	if len(pk) == 0 {
		return &ConfigurationError{Table: t.Name, Reason: "no PK columns: cannot build a well-formed fingerprint expression"}
	}

	switch s.Dialect() {
	case dialectPostgres:
		return installTriggersPostgres(ctx, s, t, pk)
	default:
		return installTriggersSQLite(ctx, s, t, pk)
	}
}

func fingerprintExprSQLite(alias string, pk []ColumnDescriptor) string {
	parts := make([]string, len(pk))
	for i, c := range pk {
		parts[i] = fmt.Sprintf("CAST(%s.%s AS TEXT)", alias, quoteIdent(c.Name))
	}
	return strings.Join(parts, " || char(31) || ")
}

func fingerprintExprPostgres(alias string, pk []ColumnDescriptor) string {
	parts := make([]string, len(pk))
	for i, c := range pk {
		parts[i] = fmt.Sprintf("(%s.%s)::text", alias, quoteIdent(c.Name))
	}
	return strings.Join(parts, " || chr(31) || ")
}

func installTriggersSQLite(ctx context.Context, s Session, t *TableDescriptor, pk []ColumnDescriptor) error {
	qTable := quoteIdent(t.Name)
	qn := t.QualifiedName()

	stmts := []string{
		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s AFTER INSERT ON %s BEGIN
			INSERT INTO %s (TBL, OP, PK) VALUES ('%s', 'I', %s);
		END`, quoteIdent(triggerName(t.Name, Insert)), qTable, changeLogTable, qn, fingerprintExprSQLite("NEW", pk)),

		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s AFTER UPDATE ON %s BEGIN
			INSERT INTO %s (TBL, OP, PK) VALUES ('%s', 'U', %s);
		END`, quoteIdent(triggerName(t.Name, Update)), qTable, changeLogTable, qn, fingerprintExprSQLite("NEW", pk)),

		fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s AFTER DELETE ON %s BEGIN
			INSERT INTO %s (TBL, OP, PK) VALUES ('%s', 'D', %s);
		END`, quoteIdent(triggerName(t.Name, Delete)), qTable, changeLogTable, qn, fingerprintExprSQLite("OLD", pk)),
	}

	for _, stmt := range stmts {
		if _, err := s.ExecContext(ctx, stmt); err != nil {
			return driverErr("install trigger on "+t.Name, err)
		}
	}
	return nil
}

// installTriggersPostgres installs one trigger function per operation (a
// function body can't be parameterized the way SQLite's inline trigger body
// can) and then the trigger itself. CREATE OR REPLACE FUNCTION plus an
// unconditional re-create of the trigger keeps this idempotent.
func installTriggersPostgres(ctx context.Context, s Session, t *TableDescriptor, pk []ColumnDescriptor) error {
	qTable := quoteIdent(t.Schema) + "." + quoteIdent(t.Name)
	if t.Schema == "" {
		qTable = quoteIdent(t.Name)
	}
	qn := t.QualifiedName()

	ops := []struct {
		op     ChangeType
		opCode string
		event  string
		alias  string
	}{
		{Insert, "I", "INSERT", "NEW"},
		{Update, "U", "UPDATE", "NEW"},
		{Delete, "D", "DELETE", "OLD"},
	}

	for _, o := range ops {
		fnName := quoteIdent(fmt.Sprintf("%s_ct_%s_fn", t.Name, strings.ToLower(o.event)))
		trgName := quoteIdent(triggerName(t.Name, o.op))

		fn := fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS TRIGGER AS $$
			BEGIN
				INSERT INTO %s (TBL, OP, PK) VALUES ('%s', '%s', %s);
				RETURN %s;
			END;
			$$ LANGUAGE plpgsql`, fnName, changeLogTable, qn, o.opCode, fingerprintExprPostgres(o.alias, pk), o.alias)

		if _, err := s.ExecContext(ctx, fn); err != nil {
			return driverErr("install trigger function on "+t.Name, err)
		}

		drop := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, trgName, qTable)
		if _, err := s.ExecContext(ctx, drop); err != nil {
			return driverErr("drop existing trigger on "+t.Name, err)
		}

		create := fmt.Sprintf(`CREATE TRIGGER %s AFTER %s ON %s FOR EACH ROW EXECUTE FUNCTION %s()`,
			trgName, o.event, qTable, fnName)
		if _, err := s.ExecContext(ctx, create); err != nil {
			return driverErr("create trigger on "+t.Name, err)
		}
	}
	return nil
}
