package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/store"
)

// Ledger opens and seals import runs.
type Ledger struct {
	store  *store.Store
	logger *slog.Logger
}

// NewLedger returns a ledger over s.
func NewLedger(s *store.Store, logger *slog.Logger) *Ledger {
	return &Ledger{store: s, logger: logger}
}

// Open finds or creates the run for a source snapshot and returns it with
// the run before it (nil for the first run). Opening the same snapshot
// again resumes its run.
func (l *Ledger) Open(ctx context.Context, sourceTimestamp time.Time, sourceName string) (ir.ImportRun, *ir.ImportRun, error) {
	run, created, err := l.store.FindOrCreateRun(ctx, sourceTimestamp, sourceName)
	if err != nil {
		return ir.ImportRun{}, nil, fmt.Errorf("open run: %w", err)
	}

	var previous *ir.ImportRun
	prev, err := l.store.PreviousRun(ctx, run.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return ir.ImportRun{}, nil, fmt.Errorf("open run: previous: %w", err)
	default:
		previous = &prev
	}

	attrs := []any{
		"run_id", run.ID,
		"source", sourceName,
		"source_timestamp", sourceTimestamp.UTC().Format(time.RFC3339),
		"resumed", !created,
	}
	if previous != nil {
		attrs = append(attrs, "previous_run_id", previous.ID, "previous_post_watermark", previous.Watermarks.PostID)
	}
	l.logger.Info("run opened", attrs...)
	return run, previous, nil
}

// Close snapshots the entity watermarks into the run and marks its import
// finished.
func (l *Ledger) Close(ctx context.Context, runID int64) (ir.ImportRun, error) {
	run, err := l.store.SealRun(ctx, runID, ir.PhaseImportFinished)
	if err != nil {
		return ir.ImportRun{}, fmt.Errorf("close run %d: %w", runID, err)
	}
	l.logger.Info("run closed",
		"run_id", run.ID,
		"post_watermark", run.Watermarks.PostID,
		"content_watermark", run.Watermarks.ContentID)
	return run, nil
}

// Latest returns the newest run, or store.ErrNotFound.
func (l *Ledger) Latest(ctx context.Context) (ir.ImportRun, error) {
	return l.store.LatestRun(ctx)
}
