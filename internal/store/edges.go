package store

import (
	"context"
	"fmt"

	"github.com/roach88/trailkeep/internal/ir"
)

// InsertEdge appends an identity edge. A duplicate of (kind, source, dest,
// run) is ignored and reported as inserted=false.
func (t *Tx) InsertEdge(ctx context.Context, e ir.IdentityEdge) (bool, error) {
	contextJSON, err := ir.Canonicalize(e.Context)
	if err != nil {
		return false, fmt.Errorf("insert edge: context: %w", err)
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO identity_edges (kind, source_name_id, dest_name_id, run_id, context)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(kind, source_name_id, dest_name_id, run_id) DO NOTHING
	`, string(e.Kind), e.SourceNameID, e.DestNameID, e.RunID, string(contextJSON))
	if err != nil {
		return false, fmt.Errorf("insert %s edge %d->%d: %w", e.Kind, e.SourceNameID, e.DestNameID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert edge: rows affected: %w", err)
	}
	return n > 0, nil
}

// ListEdges returns every identity edge ordered by id.
func (s *Store) ListEdges(ctx context.Context) ([]ir.IdentityEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, source_name_id, dest_name_id, run_id, context
		FROM identity_edges
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var out []ir.IdentityEdge
	for rows.Next() {
		var (
			e         ir.IdentityEdge
			kind, raw string
		)
		if err := rows.Scan(&e.ID, &kind, &e.SourceNameID, &e.DestNameID, &e.RunID, &raw); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Kind = ir.EdgeKind(kind)
		if err := decodeJSON(raw, &e.Context); err != nil {
			return nil, fmt.Errorf("edge %d: context: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return out, nil
}
