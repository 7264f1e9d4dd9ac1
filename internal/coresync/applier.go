package coresync

import (
	"context"
	"database/sql"
)

// ApplyChanges replays a change set against this store under a single
// transaction, detecting conflicts through each table's template and
// invoking resolver for any update/delete that hits one. resolver may be
// nil, in which case conflicts are not errors — they are skipped silently
// and the local row is left untouched.
//
// The returned anchor is read inside the same transaction as the writes, so
// it names exactly the state this call produced.
func (p *Provider) ApplyChanges(ctx context.Context, changeSet ChangeSet, resolver ConflictResolver) (Anchor, error) {
	if err := p.checkAnchor(changeSet.Anchor); err != nil {
		return Anchor{}, err
	}

	var result Anchor
	err := withTx(ctx, p.session, func(tx Txn) error {
		_, minID, err := versionBounds(ctx, tx)
		if err != nil {
			return err
		}
		if err := checkAnchorFresh(changeSet.Anchor, minID); err != nil {
			return err
		}

		for _, item := range changeSet.Items {
			if err := p.applyItem(ctx, tx, item, changeSet.Anchor.Version, resolver); err != nil {
				return err
			}
		}

		maxID, _, err := versionBounds(ctx, tx)
		if err != nil {
			return err
		}
		result = Anchor{Version: maxID, Variant: p.variant}
		return nil
	})
	if err != nil {
		return Anchor{}, err
	}
	return result, nil
}

// applyItem is the per-item conflict-aware apply state machine: try the
// write, and if it affects no rows, decide why (insert collision, update/
// delete conflict, or a force-written update whose target row is gone) and
// either retry, ask the resolver, or give up.
func (p *Provider) applyItem(ctx context.Context, tx Txn, item ChangeItem, lastSyncVersion int64, resolver ConflictResolver) error {
	table, err := p.tableByName(item.Table)
	if err != nil {
		return err
	}
	if table.Direction == PullOnly {
		return &ConfigurationError{Table: table.Name, Reason: "table is configured pull-only; it does not accept applied changes"}
	}

	tmpl, err := p.templateFor(table.Name)
	if err != nil {
		return err
	}
	pk := table.primaryKeyColumns()

	fp, err := fingerprint(pk, item.Values)
	if err != nil {
		return err
	}

	op := item.ChangeType
	forceWrite := false

	for {
		affected, err := execTemplate(ctx, tx, p.session.Dialect(), tmpl, op, table.Columns, item.Values, lastSyncVersion, forceWrite, fp)
		if err != nil {
			return err
		}
		if affected >= 1 {
			return nil
		}

		// affected == 0
		if op == Insert {
			maxID, _, verr := versionBounds(ctx, tx)
			if verr != nil {
				return verr
			}
			return &InvalidSyncOperation{
				Table:           table.Name,
				CandidateAnchor: Anchor{Version: maxID + 1, Variant: p.variant},
			}
		}

		// op is Update or Delete and matched no row.
		if forceWrite {
			if op == Delete {
				// Already gone: treat as success.
				return nil
			}
			// op == Update with force-write already granted: the row is
			// gone locally but the caller wants it applied regardless -
			// resurrect it as an insert and retry once more.
			op = Insert
			continue
		}

		resolution := Skip
		if resolver != nil {
			resolution = resolver(item)
		}
		if resolution == ForceWrite {
			forceWrite = true
			continue
		}
		// No resolver, or Skip: leave the local row untouched.
		return nil
	}
}

// execTemplate binds and executes the template for op, returning the
// affected-row count.
func execTemplate(ctx context.Context, tx Tx, dialect string, tmpl *templateSet, op ChangeType, cols []ColumnDescriptor, values map[string]any, lastSyncVersion int64, forceWrite bool, fp string) (int64, error) {
	var sqlText string
	var order []string
	switch op {
	case Insert:
		sqlText, order = tmpl.insertSQL, tmpl.insertOrder
	case Update:
		sqlText, order = tmpl.updateSQL, tmpl.updateOrder
	case Delete:
		sqlText, order = tmpl.deleteSQL, tmpl.deleteOrder
	}

	forceWriteInt := int64(0)
	if forceWrite {
		forceWriteInt = 1
	}

	params := make(map[string]any, len(cols)+3)
	for _, c := range cols {
		params[paramName(c.Name)] = values[c.Name]
	}
	params["last_sync_version"] = lastSyncVersion
	params["sync_force_write"] = forceWriteInt
	params["sync_fingerprint"] = fp

	var args []any
	if dialect == dialectPostgres {
		args = make([]any, len(order))
		for i, name := range order {
			args[i] = params[name]
		}
	} else {
		args = make([]any, 0, len(params))
		for name, v := range params {
			args = append(args, sql.Named(name, v))
		}
	}

	res, err := tx.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return 0, driverErr("apply "+string(op), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, driverErr("read affected rows", err)
	}
	return affected, nil
}
