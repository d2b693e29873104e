package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/trailkeep/internal/ir"
)

const runColumns = `id, source_timestamp, source_name, phase, post_id, content_id, tag_id,
	resource_id, account_name_id, account_id, identity_edge_id, language_id`

// FindOrCreateRun returns the run for a source snapshot, creating it in
// phase need_import on first sight. Timestamps are compared at nanosecond
// precision.
func (s *Store) FindOrCreateRun(ctx context.Context, sourceTimestamp time.Time, sourceName string) (ir.ImportRun, bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO import_runs (source_timestamp, source_name, phase)
		VALUES (?, ?, ?)
		ON CONFLICT(source_timestamp) DO NOTHING
	`, sourceTimestamp.UnixNano(), sourceName, string(ir.PhaseNeedImport))
	if err != nil {
		return ir.ImportRun{}, false, fmt.Errorf("create run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return ir.ImportRun{}, false, fmt.Errorf("create run: rows affected: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM import_runs WHERE source_timestamp = ?`,
		sourceTimestamp.UnixNano())
	run, err := scanRun(row)
	if err != nil {
		return ir.ImportRun{}, false, fmt.Errorf("create run: select: %w", err)
	}
	return run, rowsAffected > 0, nil
}

// ReadRun returns the run with id, or ErrNotFound.
func (s *Store) ReadRun(ctx context.Context, id int64) (ir.ImportRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM import_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return ir.ImportRun{}, fmt.Errorf("run %d: %w", id, err)
	}
	return run, nil
}

// PreviousRun returns the run with the greatest id below id, or
// ErrNotFound when id is the first run.
func (s *Store) PreviousRun(ctx context.Context, id int64) (ir.ImportRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM import_runs WHERE id < ? ORDER BY id DESC LIMIT 1
	`, id)
	run, err := scanRun(row)
	if err != nil {
		return ir.ImportRun{}, fmt.Errorf("run before %d: %w", id, err)
	}
	return run, nil
}

// LatestRun returns the run with the greatest id, or ErrNotFound.
func (s *Store) LatestRun(ctx context.Context) (ir.ImportRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM import_runs ORDER BY id DESC LIMIT 1`)
	run, err := scanRun(row)
	if err != nil {
		return ir.ImportRun{}, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns every run ordered by id.
func (s *Store) ListRuns(ctx context.Context) ([]ir.ImportRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM import_runs ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []ir.ImportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// SealRun snapshots MAX(id) of every entity table into the run's
// watermark columns and moves it to phase. The snapshot and the phase
// change are one statement.
func (s *Store) SealRun(ctx context.Context, id int64, phase ir.RunPhase) (ir.ImportRun, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE import_runs SET
			post_id          = (SELECT MAX(id) FROM posts),
			content_id       = (SELECT MAX(id) FROM contents),
			tag_id           = (SELECT MAX(id) FROM tags),
			resource_id      = (SELECT MAX(id) FROM resources),
			account_name_id  = (SELECT MAX(id) FROM account_names),
			account_id       = (SELECT MAX(id) FROM accounts),
			identity_edge_id = (SELECT MAX(id) FROM identity_edges),
			language_id      = (SELECT MAX(id) FROM languages),
			phase            = ?
		WHERE id = ?
	`, string(phase), id)
	if err != nil {
		return ir.ImportRun{}, fmt.Errorf("seal run %d: %w", id, err)
	}
	return s.ReadRun(ctx, id)
}

func scanRun(row rowScanner) (ir.ImportRun, error) {
	var (
		run   ir.ImportRun
		ts    int64
		phase string
		marks [8]sql.NullInt64
	)
	err := row.Scan(&run.ID, &ts, &run.SourceName, &phase,
		&marks[0], &marks[1], &marks[2], &marks[3], &marks[4], &marks[5], &marks[6], &marks[7])
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ImportRun{}, ErrNotFound
	}
	if err != nil {
		return ir.ImportRun{}, fmt.Errorf("scan run: %w", err)
	}
	run.SourceTimestamp = time.Unix(0, ts).UTC()
	run.Phase = ir.RunPhase(phase)
	run.Watermarks = ir.Watermarks{
		PostID:         marks[0].Int64,
		ContentID:      marks[1].Int64,
		TagID:          marks[2].Int64,
		ResourceID:     marks[3].Int64,
		AccountNameID:  marks[4].Int64,
		AccountID:      marks[5].Int64,
		IdentityEdgeID: marks[6].Int64,
		LanguageID:     marks[7].Int64,
	}
	return run, nil
}
