package coresync

import (
	"context"
	"database/sql"
	"fmt"
)

// GetIncrementalChanges returns the rows that changed since anchor, across
// every configured table. anchor must be this provider's variant
// (ErrIncompatibleAnchor otherwise) and must not be older than the store's
// retention floor (AnchorTooOld otherwise).
func (p *Provider) GetIncrementalChanges(ctx context.Context, anchor Anchor) (*ChangeSet, error) {
	if err := p.checkAnchor(anchor); err != nil {
		return nil, err
	}

	var result *ChangeSet
	err := withTx(ctx, p.session, func(tx Txn) error {
		maxID, minID, err := versionBounds(ctx, tx)
		if err != nil {
			return err
		}
		if err := checkAnchorFresh(anchor, minID); err != nil {
			return err
		}

		var items []ChangeItem
		for _, t := range p.tables {
			if len(t.Columns) == 0 {
				continue
			}
			tableItems, err := extractTableChanges(ctx, tx, p.session.Dialect(), t, anchor.Version)
			if err != nil {
				return err
			}
			schema := p.schemaFor(t)
			for i := range tableItems {
				tableItems[i].Values = coerceRow(schema, tableItems[i].Values)
			}
			items = append(items, tableItems...)
		}

		result = &ChangeSet{Anchor: Anchor{Version: maxID, Variant: p.variant}, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetInitialSet returns every row of every configured table as an Insert
// item, tagged with the store's current version. Used once to seed a fresh
// peer; it performs no join against the change-log.
func (p *Provider) GetInitialSet(ctx context.Context) (*ChangeSet, error) {
	var result *ChangeSet
	err := withTx(ctx, p.session, func(tx Txn) error {
		maxID, _, err := versionBounds(ctx, tx)
		if err != nil {
			return err
		}

		var items []ChangeItem
		for _, t := range p.tables {
			if len(t.Columns) == 0 {
				continue
			}
			rows, err := tx.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", quoteIdent(t.Name)))
			if err != nil {
				return driverErr("select all from "+t.Name, err)
			}
			tableItems, err := scanRowsAsInsert(rows, t.Name)
			if err != nil {
				return err
			}
			schema := p.schemaFor(t)
			for i := range tableItems {
				tableItems[i].Values = coerceRow(schema, tableItems[i].Values)
			}
			items = append(items, tableItems...)
		}

		result = &ChangeSet{Anchor: Anchor{Version: maxID, Variant: p.variant}, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// extractTableChanges performs a two-phase read for one table: first the
// change-log tells us which primary keys changed and the MIN(op) tie-break
// winner for each ('D' < 'I' < 'U', so any delete beats any insert/update,
// any insert beats any update); then, for anything other than a delete, the
// current row is fetched by primary key. A row reported as changed whose
// current state can no longer be found — the target row is gone but no
// delete was ever recorded — is dropped rather than fabricated.
func extractTableChanges(ctx context.Context, tx Tx, dialect string, t *TableDescriptor, sinceVersion int64) ([]ChangeItem, error) {
	pk := t.primaryKeyColumns()
	qn := t.QualifiedName()

	groupQuery := fmt.Sprintf(
		`SELECT PK, MIN(OP) FROM %s WHERE TBL = %s AND ID > %s GROUP BY PK ORDER BY PK`,
		changeLogTable, placeholder(dialect, 1), placeholder(dialect, 2))

	rows, err := tx.QueryContext(ctx, groupQuery, qn, sinceVersion)
	if err != nil {
		return nil, driverErr("group change-log for "+t.Name, err)
	}

	type pkOp struct {
		pk string
		op string
	}
	var changed []pkOp
	for rows.Next() {
		var po pkOp
		if err := rows.Scan(&po.pk, &po.op); err != nil {
			rows.Close()
			return nil, driverErr("scan change-log group", err)
		}
		changed = append(changed, po)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, driverErr("iterate change-log group", err)
	}
	rows.Close()

	var items []ChangeItem
	for _, po := range changed {
		if po.op == string(Delete) {
			values, err := decomposeFingerprint(pk, po.pk)
			if err != nil {
				return nil, err
			}
			items = append(items, ChangeItem{Table: t.Name, ChangeType: Delete, Values: values})
			continue
		}

		pkValues, err := decomposeFingerprint(pk, po.pk)
		if err != nil {
			return nil, err
		}

		row, found, err := fetchRowByPK(ctx, tx, dialect, t, pk, pkValues)
		if err != nil {
			return nil, err
		}
		if !found {
			// Changed but no longer present, and the log never recorded a
			// delete: an inconsistent state we drop rather than guess at.
			continue
		}

		items = append(items, ChangeItem{Table: t.Name, ChangeType: ChangeType(po.op), Values: row})
	}
	return items, nil
}

func fetchRowByPK(ctx context.Context, tx Tx, dialect string, t *TableDescriptor, pk []ColumnDescriptor, pkValues map[string]any) (map[string]any, bool, error) {
	where := make([]string, len(pk))
	args := make([]any, len(pk))
	for i, c := range pk {
		where[i] = fmt.Sprintf("%s = %s", quoteIdent(c.Name), placeholder(dialect, i+1))
		args[i] = pkValues[c.Name]
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", quoteIdent(t.Name), joinAnd(where))

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, driverErr("select by pk from "+t.Name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, driverErr("iterate row by pk", rows.Err())
	}
	row, err := scanRow(rows)
	if err != nil {
		return nil, false, err
	}
	return row, true, driverErr("iterate row by pk", rows.Err())
}

func scanRow(rows *sql.Rows) (map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, driverErr("read columns", err)
	}
	ptrs := make([]any, len(cols))
	vals := make([]any, len(cols))
	for i := range ptrs {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, driverErr("scan row", err)
	}
	out := make(map[string]any, len(cols))
	for i, c := range cols {
		out[c] = vals[i]
	}
	return out, nil
}

func scanRowsAsInsert(rows *sql.Rows, table string) ([]ChangeItem, error) {
	defer rows.Close()
	var items []ChangeItem
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, ChangeItem{Table: table, ChangeType: Insert, Values: row})
	}
	return items, driverErr("iterate rows of "+table, rows.Err())
}

func placeholder(dialect string, n int) string {
	if dialect == dialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func joinAnd(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " AND "
		}
		out += p
	}
	return out
}
