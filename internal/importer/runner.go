package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/source"
	"github.com/roach88/trailkeep/internal/store"
)

// Options tunes a Runner.
type Options struct {
	// Workers is the number of batches processed concurrently. Values
	// below 1 mean 1.
	Workers int
	// CacheResetEvery clears a worker's cache and evidence set after that
	// many batches. Zero never clears.
	CacheResetEvery int
}

// RunSummary is the outcome of one Run.
type RunSummary struct {
	Run     ir.ImportRun `json:"run"`
	Batches int          `json:"batches"`
	Failed  int          `json:"failed"`
	Stats   Stats        `json:"stats"`
}

// Runner drives a whole source through the importer: it opens the run,
// fans batches out to workers, records every batch outcome and closes the
// run.
type Runner struct {
	store    *store.Store
	importer *Importer
	ledger   *Ledger
	tokens   TokenGenerator
	opts     Options
	logger   *slog.Logger
}

// NewRunner returns a runner over s issuing UUIDv7 batch tokens.
func NewRunner(s *store.Store, opts Options, logger *slog.Logger) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{
		store:    s,
		importer: New(s, logger),
		ledger:   NewLedger(s, logger),
		tokens:   UUIDv7Generator{},
		opts:     opts,
		logger:   logger,
	}
}

// WithTokens replaces the batch token generator.
func (r *Runner) WithTokens(g TokenGenerator) *Runner {
	r.tokens = g
	return r
}

// work is one unit handed to a worker: a decoded batch or the decode
// failure of one entry.
type work struct {
	batch source.Batch
	key   string
	err   error
}

// Run imports every batch of src. Failed batches are recorded and
// skipped; the returned error is reserved for failures that stop the run
// (source I/O, the ledger, cancellation). The run is closed only when all
// batches were attempted.
func (r *Runner) Run(ctx context.Context, src source.Source) (RunSummary, error) {
	run, previous, err := r.ledger.Open(ctx, src.Timestamp(), src.Name())
	if err != nil {
		return RunSummary{}, err
	}
	summary := RunSummary{Run: run}

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan work)

	g.Go(func() error {
		defer close(queue)
		for {
			b, err := src.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			w, err := newWork(b, err)
			if err != nil {
				return err
			}
			select {
			case queue <- w:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	var mu sync.Mutex
	for i := 0; i < r.opts.Workers; i++ {
		worker := i
		g.Go(func() error {
			rc := NewRunContext(run, previous)
			done := 0
			for w := range queue {
				stats, err := r.process(gctx, rc, w)
				if err != nil && gctx.Err() != nil {
					return gctx.Err()
				}
				if err := r.record(gctx, run.ID, w.key, stats, err); err != nil {
					return err
				}

				mu.Lock()
				summary.Batches++
				if err != nil {
					summary.Failed++
				} else {
					summary.Stats.Add(stats)
				}
				mu.Unlock()

				done++
				if err != nil || (r.opts.CacheResetEvery > 0 && done%r.opts.CacheResetEvery == 0) {
					r.logger.Debug("worker state reset", "run_id", run.ID, "worker", worker, "cached", rc.Cache.Len())
					rc.Reset()
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}

	sealed, err := r.ledger.Close(ctx, run.ID)
	if err != nil {
		return summary, err
	}
	summary.Run = sealed

	r.logger.Info("run finished",
		"run_id", sealed.ID,
		"batches", summary.Batches,
		"failed", summary.Failed,
		"posts", summary.Stats.Posts,
		"new_posts", summary.Stats.NewPosts,
		"revisited_posts", summary.Stats.RevisitedPosts)
	return summary, nil
}

// newWork turns one read from a source into a queue item. A batch that
// failed to decode is still queued so it gets a ledger row.
func newWork(b source.Batch, err error) (work, error) {
	var de *source.DecodeError
	switch {
	case errors.As(err, &de):
		return work{key: de.Key, err: &ImportError{Code: ErrCodeMalformed, Batch: de.Key, Err: err}}, nil
	case err != nil:
		return work{}, fmt.Errorf("read source: %w", err)
	}
	return work{batch: b, key: b.Key}, nil
}

func (r *Runner) process(ctx context.Context, rc *RunContext, w work) (Stats, error) {
	if w.err != nil {
		return Stats{}, w.err
	}
	return r.importer.ImportBatch(ctx, rc, w.batch)
}

// record writes the ledger row for one batch after its transaction ended.
func (r *Runner) record(ctx context.Context, runID int64, key string, stats Stats, batchErr error) error {
	rec := ir.BatchRecord{
		RunID: runID,
		Key:   key,
		Token: r.tokens.Generate(),
	}
	if batchErr != nil {
		rec.Status = ir.BatchFailed
		rec.Error = batchErr.Error()
		r.logger.Error("batch failed", "run_id", runID, "batch", key, "token", rec.Token, "error", batchErr)
	} else {
		encoded, err := ir.Canonicalize(stats)
		if err != nil {
			return err
		}
		rec.Status = ir.BatchOK
		rec.Stats = string(encoded)
		r.logger.Debug("batch done", "run_id", runID, "batch", key, "token", rec.Token, "posts", stats.Posts)
	}
	if err := r.store.RecordBatch(ctx, rec); err != nil {
		return fmt.Errorf("batch ledger: %w", err)
	}
	return nil
}

// RecordManualEdge records an operator-asserted edge in the latest run.
func (r *Runner) RecordManualEdge(ctx context.Context, a, b, note string) (bool, error) {
	return r.importer.RecordManualEdge(ctx, a, b, note)
}
