// Package importer reconciles batches of dumped posts into the store.
//
// Each batch runs in one transaction. Posts are reconciled (created,
// left alone, or diffed against the stored row with replaced values
// archived) and then linked to their resources, trail and tags.
// Identity evidence observed along the way is appended to the edge table.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/source"
	"github.com/roach88/trailkeep/internal/store"
)

// Importer applies batches to a store.
type Importer struct {
	store      *store.Store
	reconciler *Reconciler
	linker     *Linker
	logger     *slog.Logger
}

// New returns an importer writing to s.
func New(s *store.Store, logger *slog.Logger) *Importer {
	content := NewContentStore(logger)
	return &Importer{
		store:      s,
		reconciler: NewReconciler(content, logger),
		linker:     NewLinker(content, logger),
		logger:     logger,
	}
}

// ImportBatch applies b inside one transaction using rc's cache and
// evidence set. On error nothing from the batch is kept, and rc may hold
// ids of rolled-back rows: callers must Reset it.
func (im *Importer) ImportBatch(ctx context.Context, rc *RunContext, b source.Batch) (Stats, error) {
	tx, err := im.store.Begin(ctx)
	if err != nil {
		return Stats{}, &ImportError{Code: ErrCodeStore, Batch: b.Key, Err: err}
	}
	defer tx.Rollback()

	var stats Stats
	sc := &scope{RunContext: rc, tx: tx, stats: &stats, batch: b.Key}
	for i := range b.Posts {
		if err := im.importPost(ctx, sc, b.Account, &b.Posts[i]); err != nil {
			return Stats{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, &ImportError{Code: ErrCodeStore, Batch: b.Key, Err: err}
	}
	return stats, nil
}

func (im *Importer) importPost(ctx context.Context, sc *scope, batchAccount string, p *source.Post) error {
	if p.ID == "" {
		sc.stats.Skipped++
		im.logger.Warn("post without id", "run_id", sc.Run.ID, "batch", sc.batch)
		return nil
	}

	name := batchAccount
	if name == "" {
		name = p.Blog.Name
	}
	if name == "" {
		return &ImportError{
			Code:     ErrCodeMissingAccount,
			Batch:    sc.batch,
			SourceID: string(p.ID),
			Err:      errors.New("neither the batch nor the post names an account"),
		}
	}

	fail := func(err error) error {
		return &ImportError{Code: ErrCodeStore, Batch: sc.batch, SourceID: string(p.ID), Err: err}
	}

	account, err := sc.Cache.Name(ctx, sc.tx, name)
	if err != nil {
		return fail(fmt.Errorf("account: %w", err))
	}
	sc.account = account
	sc.stats.Posts++

	post, outcome, err := im.reconciler.Reconcile(ctx, sc, p)
	if err != nil {
		return fail(fmt.Errorf("reconcile: %w", err))
	}
	if err := im.linker.Link(ctx, sc, post, p); err != nil {
		return fail(fmt.Errorf("link: %w", err))
	}

	im.logger.Debug("post imported",
		"run_id", sc.Run.ID,
		"batch", sc.batch,
		"post_id", post.ID,
		"source_id", string(p.ID),
		"outcome", outcome.String())
	return nil
}

// RecordManualEdge records an operator-asserted edge a -> b in the latest
// run. It reports whether a new edge was written.
func (im *Importer) RecordManualEdge(ctx context.Context, a, b, note string) (bool, error) {
	run, err := NewLedger(im.store, im.logger).Latest(ctx)
	if err != nil {
		return false, fmt.Errorf("manual edge: latest run: %w", err)
	}

	tx, err := im.store.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	ev := NewEvidence(run.ID, NewCache())
	inserted, err := ev.Record(ctx, tx, ir.EdgeManual, ByName(a), ByName(b), ir.EdgeContext{Note: note})
	if err != nil {
		return false, fmt.Errorf("manual edge: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return inserted, nil
}
