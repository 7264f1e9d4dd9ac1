package coresync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyChangesInsertsNewRow(t *testing.T) {
	p, db := newTestProvider(t, widgetTables())
	ctx := context.Background()
	zero := ZeroAnchor("test")

	set := ChangeSet{
		Anchor: zero,
		Items: []ChangeItem{
			{Table: "widgets", ChangeType: Insert, Values: map[string]any{"id": int64(1), "label": "fresh"}},
		},
	}

	result, err := p.ApplyChanges(ctx, set, nil)
	require.NoError(t, err)
	require.Greater(t, result.Version, int64(0))

	var label string
	require.NoError(t, db.QueryRow(`SELECT label FROM widgets WHERE id = 1`).Scan(&label))
	require.Equal(t, "fresh", label)
}

func TestApplyChangesInsertCollisionIsInvalidSyncOperation(t *testing.T) {
	p, db := newTestProvider(t, widgetTables())
	ctx := context.Background()

	_, err := db.Exec(`INSERT INTO widgets (id, label) VALUES (1, 'existing')`)
	require.NoError(t, err)

	set := ChangeSet{
		Anchor: ZeroAnchor("test"),
		Items: []ChangeItem{
			{Table: "widgets", ChangeType: Insert, Values: map[string]any{"id": int64(1), "label": "incoming"}},
		},
	}

	_, err = p.ApplyChanges(ctx, set, nil)
	require.Error(t, err)
	var invalid *InvalidSyncOperation
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "widgets", invalid.Table)
}

// TestApplyChangesSkipsConflictingUpdateWithNoResolver verifies the
// default behavior: a local row changed after the anchor the incoming
// update claims to be based on is left untouched when no resolver is
// supplied.
func TestApplyChangesSkipsConflictingUpdateWithNoResolver(t *testing.T) {
	p, db := newTestProvider(t, widgetTables())
	ctx := context.Background()
	zero := ZeroAnchor("test")

	_, err := db.Exec(`INSERT INTO widgets (id, label) VALUES (1, 'a')`)
	require.NoError(t, err)
	base, err := p.GetIncrementalChanges(ctx, zero)
	require.NoError(t, err)

	// Local change after base.Anchor - a genuine conflict with anything
	// claiming base.Anchor as its basis.
	_, err = db.Exec(`UPDATE widgets SET label = 'local-wins' WHERE id = 1`)
	require.NoError(t, err)

	set := ChangeSet{
		Anchor: base.Anchor,
		Items: []ChangeItem{
			{Table: "widgets", ChangeType: Update, Values: map[string]any{"id": int64(1), "label": "remote"}},
		},
	}

	_, err = p.ApplyChanges(ctx, set, nil)
	require.NoError(t, err)

	var label string
	require.NoError(t, db.QueryRow(`SELECT label FROM widgets WHERE id = 1`).Scan(&label))
	require.Equal(t, "local-wins", label)
}

// TestApplyChangesForceWriteOverridesConflict exercises the resolver path:
// ForceWrite applies the incoming update despite the local conflicting
// change.
func TestApplyChangesForceWriteOverridesConflict(t *testing.T) {
	p, db := newTestProvider(t, widgetTables())
	ctx := context.Background()
	zero := ZeroAnchor("test")

	_, err := db.Exec(`INSERT INTO widgets (id, label) VALUES (1, 'a')`)
	require.NoError(t, err)
	base, err := p.GetIncrementalChanges(ctx, zero)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE widgets SET label = 'local' WHERE id = 1`)
	require.NoError(t, err)

	set := ChangeSet{
		Anchor: base.Anchor,
		Items: []ChangeItem{
			{Table: "widgets", ChangeType: Update, Values: map[string]any{"id": int64(1), "label": "remote-wins"}},
		},
	}

	resolver := func(item ChangeItem) Resolution { return ForceWrite }
	_, err = p.ApplyChanges(ctx, set, resolver)
	require.NoError(t, err)

	var label string
	require.NoError(t, db.QueryRow(`SELECT label FROM widgets WHERE id = 1`).Scan(&label))
	require.Equal(t, "remote-wins", label)
}

// TestApplyChangesForceWriteResurrectsDeletedRow exercises the
// Update-to-Insert transition: the local row was deleted, but the resolver
// still wants the incoming update applied, so it is replayed as an insert.
func TestApplyChangesForceWriteResurrectsDeletedRow(t *testing.T) {
	p, db := newTestProvider(t, widgetTables())
	ctx := context.Background()
	zero := ZeroAnchor("test")

	_, err := db.Exec(`INSERT INTO widgets (id, label) VALUES (1, 'a')`)
	require.NoError(t, err)
	base, err := p.GetIncrementalChanges(ctx, zero)
	require.NoError(t, err)

	_, err = db.Exec(`DELETE FROM widgets WHERE id = 1`)
	require.NoError(t, err)

	set := ChangeSet{
		Anchor: base.Anchor,
		Items: []ChangeItem{
			{Table: "widgets", ChangeType: Update, Values: map[string]any{"id": int64(1), "label": "resurrected"}},
		},
	}

	resolver := func(item ChangeItem) Resolution { return ForceWrite }
	_, err = p.ApplyChanges(ctx, set, resolver)
	require.NoError(t, err)

	var label string
	require.NoError(t, db.QueryRow(`SELECT label FROM widgets WHERE id = 1`).Scan(&label))
	require.Equal(t, "resurrected", label)
}

// TestApplyChangesDeleteOfAlreadyGoneRowSucceeds covers the force-write
// Delete branch: deleting a row that is already gone is treated as success,
// not as a conflict needing another round trip.
func TestApplyChangesDeleteOfAlreadyGoneRowSucceeds(t *testing.T) {
	p, db := newTestProvider(t, widgetTables())
	ctx := context.Background()
	zero := ZeroAnchor("test")

	_, err := db.Exec(`INSERT INTO widgets (id, label) VALUES (1, 'a')`)
	require.NoError(t, err)
	base, err := p.GetIncrementalChanges(ctx, zero)
	require.NoError(t, err)

	_, err = db.Exec(`DELETE FROM widgets WHERE id = 1`)
	require.NoError(t, err)

	set := ChangeSet{
		Anchor: base.Anchor,
		Items: []ChangeItem{
			{Table: "widgets", ChangeType: Delete, Values: map[string]any{"id": int64(1)}},
		},
	}

	resolver := func(item ChangeItem) Resolution { return ForceWrite }
	_, err = p.ApplyChanges(ctx, set, resolver)
	require.NoError(t, err)
}

func TestApplyChangesRejectsPullOnlyTable(t *testing.T) {
	db, closeDB := newRawSQLiteDB(t)
	defer closeDB()

	_, err := db.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, label TEXT NOT NULL)`)
	require.NoError(t, err)

	session := &sqliteTestSession{db: db}
	p, err := New(Options{
		Session: session,
		Variant: "test",
		Tables:  []TableDescriptor{{Name: "widgets", Direction: PullOnly}},
	})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, p.Initialize(ctx))

	set := ChangeSet{
		Anchor: ZeroAnchor("test"),
		Items: []ChangeItem{
			{Table: "widgets", ChangeType: Insert, Values: map[string]any{"id": int64(1), "label": "x"}},
		},
	}
	_, err = p.ApplyChanges(ctx, set, nil)
	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
