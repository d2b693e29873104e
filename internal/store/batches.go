package store

import (
	"context"
	"fmt"

	"github.com/roach88/trailkeep/internal/ir"
)

// RecordBatch upserts the ledger row for one batch of a run. A batch
// delivered twice in the same run keeps one row holding the latest outcome.
func (s *Store) RecordBatch(ctx context.Context, b ir.BatchRecord) error {
	stats := b.Stats
	if stats == "" {
		stats = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_batches (run_id, batch_key, token, status, stats, error)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, batch_key) DO UPDATE SET
			token = excluded.token,
			status = excluded.status,
			stats = excluded.stats,
			error = excluded.error
	`, b.RunID, b.Key, b.Token, string(b.Status), stats, b.Error)
	if err != nil {
		return fmt.Errorf("record batch %q: %w", b.Key, err)
	}
	return nil
}

// BatchesForRun returns a run's batch rows ordered by id.
func (s *Store) BatchesForRun(ctx context.Context, runID int64) ([]ir.BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, batch_key, token, status, stats, error
		FROM import_batches
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("batches of run %d: %w", runID, err)
	}
	defer rows.Close()

	var out []ir.BatchRecord
	for rows.Next() {
		var (
			b      ir.BatchRecord
			status string
		)
		if err := rows.Scan(&b.ID, &b.RunID, &b.Key, &b.Token, &status, &b.Stats, &b.Error); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.Status = ir.BatchStatus(status)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batches of run %d: %w", runID, err)
	}
	return out, nil
}

// countable lists the tables Count accepts.
var countable = map[string]bool{
	"accounts":       true,
	"account_names":  true,
	"identity_edges": true,
	"posts":          true,
	"contents":       true,
	"post_contents":  true,
	"resources":      true,
	"post_resources": true,
	"tags":           true,
	"post_tags":      true,
	"languages":      true,
	"import_runs":    true,
	"import_batches": true,
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	if !countable[table] {
		return 0, fmt.Errorf("count: unknown table %q", table)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
