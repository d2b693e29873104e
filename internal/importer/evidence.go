package importer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/store"
)

// NameRef points at an account name either by row id or by handle.
type NameRef struct {
	ID   int64
	Name string
}

// ByID refers to an existing name row.
func ByID(id int64) NameRef { return NameRef{ID: id} }

// ByName refers to a handle, created on first use.
func ByName(name string) NameRef { return NameRef{Name: ir.TruncateName(name)} }

// IsZero reports whether the ref points at nothing.
func (r NameRef) IsZero() bool { return r.ID == 0 && r.Name == "" }

func (r NameRef) key() string {
	if r.ID != 0 {
		return "#" + strconv.FormatInt(r.ID, 10)
	}
	return "@" + r.Name
}

type edgeKey struct {
	kind ir.EdgeKind
	a, b string
}

// Evidence records identity edges for one worker in one run. The seen set
// keeps repeated observations within a run from reaching the database;
// the table's unique constraint covers everything else.
type Evidence struct {
	runID int64
	cache *Cache
	seen  map[edgeKey]struct{}
}

// NewEvidence returns an empty evidence set for runID resolving names
// through cache.
func NewEvidence(runID int64, cache *Cache) *Evidence {
	return &Evidence{runID: runID, cache: cache, seen: make(map[edgeKey]struct{})}
}

// Reset forgets which edges were recorded.
func (e *Evidence) Reset() {
	e.seen = make(map[edgeKey]struct{})
}

// Len is the number of edges this set has seen.
func (e *Evidence) Len() int { return len(e.seen) }

// Record appends a kind edge a -> b. It is a no-op (false) when either ref
// is empty, both refs name the same account, or the edge was already seen
// in this run. An id ref that does not resolve fails with ErrNameNotFound.
func (e *Evidence) Record(ctx context.Context, tx *store.Tx, kind ir.EdgeKind, a, b NameRef, ec ir.EdgeContext) (bool, error) {
	if a.IsZero() || b.IsZero() || a == b {
		return false, nil
	}
	k := edgeKey{kind: kind, a: a.key(), b: b.key()}
	if _, ok := e.seen[k]; ok {
		return false, nil
	}

	na, err := e.resolve(ctx, tx, a)
	if err != nil {
		return false, fmt.Errorf("record %s edge: %w", kind, err)
	}
	nb, err := e.resolve(ctx, tx, b)
	if err != nil {
		return false, fmt.Errorf("record %s edge: %w", kind, err)
	}
	if na.ID == nb.ID {
		e.seen[k] = struct{}{}
		return false, nil
	}

	inserted, err := tx.InsertEdge(ctx, ir.IdentityEdge{
		Kind:         kind,
		SourceNameID: na.ID,
		DestNameID:   nb.ID,
		RunID:        e.runID,
		Context:      ec,
	})
	if err != nil {
		return false, err
	}
	e.seen[k] = struct{}{}
	return inserted, nil
}

func (e *Evidence) resolve(ctx context.Context, tx *store.Tx, r NameRef) (ir.AccountName, error) {
	if r.ID != 0 {
		return e.cache.NameByID(ctx, tx, r.ID)
	}
	return e.cache.Name(ctx, tx, r.Name)
}
