package coresync

import (
	"errors"
	"fmt"
)

// ErrIncompatibleAnchor is returned when an anchor produced by a different
// provider variant is handed to GetIncrementalChanges or ApplyChanges.
var ErrIncompatibleAnchor = errors.New("coresync: incompatible anchor")

// ConfigurationError reports a problem with the table/connection
// configuration: a missing session, a duplicate table name, an
// unknown table, or a table that resolves to zero columns.
type ConfigurationError struct {
	Table  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("coresync: configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("coresync: configuration error for table %q: %s", e.Table, e.Reason)
}

// AnchorTooOld is returned when an anchor's version is older than the
// change-log's retention floor: anchor.Version < oldestRetained-1.
type AnchorTooOld struct {
	Requested      int64
	OldestRetained int64
}

func (e *AnchorTooOld) Error() string {
	return fmt.Sprintf("coresync: anchor version %d is older than the retained floor %d", e.Requested, e.OldestRetained)
}

// InvalidSyncOperation is returned when an incoming insert cannot be applied
// because a row with the same primary key already exists. CandidateAnchor is
// the version the caller should re-sync from (current max + 1 at the time of
// the failure).
type InvalidSyncOperation struct {
	Table           string
	CandidateAnchor Anchor
}

func (e *InvalidSyncOperation) Error() string {
	return fmt.Sprintf("coresync: invalid sync operation on table %q: insert collided with an existing row (retry from anchor %d)", e.Table, e.CandidateAnchor.Version)
}

// DriverError wraps any failure surfaced by the underlying Session. It
// preserves the original error for errors.Is/errors.As while giving callers
// a stable type to match against.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("coresync: driver error during %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

func driverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Op: op, Err: err}
}
