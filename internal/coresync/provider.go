package coresync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Provider is the entry point for one store's sync surface: it owns the
// per-table descriptors and precomputed templates, and exposes Initialize,
// GetInitialSet, GetIncrementalChanges, and ApplyChanges.
//
// Concurrent first callers to Initialize collapse to a single actual
// initialization via a singleflight.Group, the same mechanism
// internal/search/manager.go and internal/vector/sqlitevec/client.go use to
// coalesce concurrent identical work.
type Provider struct {
	session Session
	variant string
	tables  []*TableDescriptor

	initGroup singleflight.Group
	initDone  atomic.Bool

	mu            sync.RWMutex
	templates     map[string]*templateSet // keyed by table name
	recordSchemas map[string]RecordSchema // keyed by RecordType hint
}

// Options configures a Provider.
type Options struct {
	// Session is the backing store. Required.
	Session Session

	// Variant names this provider instance for anchor-compatibility
	// checking. Two providers pointed at logically different
	// schemas/stores should use different variants so an anchor from one
	// is rejected by the other.
	Variant string

	// Tables is the ordered list of tables to track. Required, non-empty.
	Tables []TableDescriptor

	// RecordSchemas maps a TableDescriptor.RecordType hint to the
	// per-column coercion table the extractor applies to that table's
	// values. Tables whose RecordType has no entry here, or whose
	// RecordType is empty, are extracted with native driver values.
	RecordSchemas map[string]RecordSchema
}

// New constructs a Provider. It does not touch the store — call Initialize
// before any other operation.
func New(opts Options) (*Provider, error) {
	if opts.Session == nil {
		return nil, &ConfigurationError{Reason: "session is required"}
	}
	if len(opts.Tables) == 0 {
		return nil, &ConfigurationError{Reason: "at least one table must be configured"}
	}

	seen := make(map[string]bool, len(opts.Tables))
	tables := make([]*TableDescriptor, len(opts.Tables))
	for i := range opts.Tables {
		td := opts.Tables[i]
		if err := validateIdent("table", td.Name); err != nil {
			return nil, err
		}
		key := td.Schema + "." + td.Name
		if seen[key] {
			return nil, &ConfigurationError{Table: td.Name, Reason: "duplicate table name"}
		}
		seen[key] = true
		tables[i] = &td
	}

	variant := opts.Variant
	if variant == "" {
		variant = "default"
	}

	return &Provider{
		session:       opts.Session,
		variant:       variant,
		tables:        tables,
		templates:     make(map[string]*templateSet),
		recordSchemas: opts.RecordSchemas,
	}, nil
}

// Variant returns the anchor-compatibility tag for this provider.
func (p *Provider) Variant() string { return p.variant }

// Initialize introspects each configured table, installs the change-log
// table and per-table triggers, and builds the query templates. It is
// idempotent: repeated calls (concurrent or sequential) are observationally
// equivalent to one.
func (p *Provider) Initialize(ctx context.Context) error {
	_, err, _ := p.initGroup.Do("initialize", func() (any, error) {
		if p.initDone.Load() {
			return nil, nil
		}
		if err := p.initializeOnce(ctx); err != nil {
			return nil, err
		}
		p.initDone.Store(true)
		return nil, nil
	})
	return err
}

func (p *Provider) initializeOnce(ctx context.Context) error {
	if err := installChangeLog(ctx, p.session); err != nil {
		return err
	}

	for _, t := range p.tables {
		if len(t.Columns) == 0 {
			if err := introspect(ctx, p.session, t); err != nil {
				return err
			}
		}

		if err := installTriggers(ctx, p.session, t); err != nil {
			return err
		}

		tmpl, err := buildTemplates(p.session.Dialect(), t)
		if err != nil {
			return err
		}

		p.mu.Lock()
		p.templates[t.Name] = tmpl
		p.mu.Unlock()
	}
	return nil
}

func (p *Provider) templateFor(table string) (*templateSet, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tmpl, ok := p.templates[table]
	if !ok {
		return nil, &ConfigurationError{Table: table, Reason: "not initialized or not configured"}
	}
	return tmpl, nil
}

func (p *Provider) schemaFor(t *TableDescriptor) RecordSchema {
	if t.RecordType == "" {
		return nil
	}
	return p.recordSchemas[t.RecordType]
}

func (p *Provider) tableByName(name string) (*TableDescriptor, error) {
	for _, t := range p.tables {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, &ConfigurationError{Table: name, Reason: fmt.Sprintf("unknown table %q", name)}
}
