package coresync

import "context"

// Anchor is an opaque token naming a point in the change-log history. Two
// anchors are comparable only if they carry the same Variant: an anchor
// produced by a different provider variant than the one receiving it is
// rejected with ErrIncompatibleAnchor rather than silently misinterpreted.
type Anchor struct {
	Version int64
	Variant string
}

// ZeroAnchor returns the "before anything" anchor for a given provider
// variant: version 0 denotes a point before any change-log entry exists.
func ZeroAnchor(variant string) Anchor {
	return Anchor{Version: 0, Variant: variant}
}

func (p *Provider) checkAnchor(a Anchor) error {
	if a.Variant != p.variant {
		return ErrIncompatibleAnchor
	}
	return nil
}

// versionBounds reads max(id) and min(id) from the change-log within the
// caller's transaction. An empty log reports max=0.
func versionBounds(ctx context.Context, tx Tx) (maxID, minID int64, err error) {
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(ID), 0), COALESCE(MIN(ID), 0) FROM `+changeLogTable)
	if scanErr := row.Scan(&maxID, &minID); scanErr != nil {
		return 0, 0, driverErr("read change-log bounds", scanErr)
	}
	return maxID, minID, nil
}

// checkAnchorFresh raises AnchorTooOld when anchor.Version < minID-1: an
// anchor handed to a store whose oldest retained change-log identifier is m
// is only valid if anchor.version >= m-1, otherwise some of the history
// between the anchor and m has already been pruned.
func checkAnchorFresh(anchor Anchor, minID int64) error {
	if minID == 0 {
		return nil
	}
	if anchor.Version < minID-1 {
		return &AnchorTooOld{Requested: anchor.Version, OldestRetained: minID}
	}
	return nil
}
