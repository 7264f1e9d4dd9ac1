// Package coresync implements a bidirectional row-level change-tracking and
// reconciliation engine: a sidecar change-log maintained by database
// triggers, monotonic anchors, and a conflict-aware apply state machine.
//
// The package depends on the backing store only through the Session
// interface (session.go) — the concrete driver (SQLite, Postgres, ...) lives
// in internal/store and is wired in by the caller, not by this package.
package coresync

// Direction describes whether a table is replicated both ways or is
// pull-only from the perspective of this provider.
type Direction int

const (
	// Bidirectional tables accept both extraction and application of
	// changes. This is the default.
	Bidirectional Direction = iota
	// PullOnly tables are only ever read by GetIncrementalChanges/
	// GetInitialSet; ApplyChanges rejects incoming changes for them.
	PullOnly
)

// ColumnDescriptor describes one column of a tracked table, discovered by
// the schema introspector.
type ColumnDescriptor struct {
	Name         string
	DeclaredType string
	IsPrimaryKey bool
}

// TableDescriptor configures one tracked table. Name/Schema/RecordType/
// Direction are supplied by the caller; Columns is populated on first
// Initialize and is read-only afterward.
type TableDescriptor struct {
	Name       string
	Schema     string // if empty: "main" in QualifiedName, "public" for Postgres introspection
	RecordType string // optional coercion hint, see coerce.go
	Direction  Direction

	Columns []ColumnDescriptor
}

// QualifiedName returns "schema.table", the form used as the change-log TBL
// column. Trigger names are derived from the bare table name instead.
func (t *TableDescriptor) QualifiedName() string {
	schema := t.Schema
	if schema == "" {
		schema = "main"
	}
	return schema + "." + t.Name
}

func (t *TableDescriptor) primaryKeyColumns() []ColumnDescriptor {
	var pk []ColumnDescriptor
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			pk = append(pk, c)
		}
	}
	return pk
}

// ChangeType classifies a single row-level mutation.
type ChangeType string

const (
	Insert ChangeType = "I"
	Update ChangeType = "U"
	Delete ChangeType = "D"
)

// ChangeItem is one row-level change: which table, what kind of mutation,
// and the row's column values (nil entries represent SQL NULL).
type ChangeItem struct {
	Table      string
	ChangeType ChangeType
	Values     map[string]any
}

// ChangeSet is an anchor plus the ordered list of changes that produced it
// (for extraction) or that should be replayed to reach it (for application).
type ChangeSet struct {
	Anchor Anchor
	Items  []ChangeItem
}

// Resolution is the caller's decision when ApplyChanges hits a conflict on
// an incoming update or delete.
type Resolution int

const (
	// Skip leaves the local row untouched and moves on to the next item.
	// This is the default when no resolver is supplied.
	Skip Resolution = iota
	// ForceWrite bypasses the conflict predicate and applies the incoming
	// change unconditionally.
	ForceWrite
)

// ConflictResolver decides how to handle a conflicting update/delete. It
// must be synchronous and must not touch the same store — the transaction
// applying the change set stays open across the call.
type ConflictResolver func(item ChangeItem) Resolution
