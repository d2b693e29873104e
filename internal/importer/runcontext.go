package importer

import (
	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/store"
)

// RunContext is one worker's state for one run. It is passed explicitly
// into every reconciliation call and never shared between workers.
type RunContext struct {
	Run ir.ImportRun
	// Previous is the run just before Run, nil for the first run.
	Previous *ir.ImportRun
	Cache    *Cache
	Evidence *Evidence
}

// NewRunContext returns fresh per-worker state for run.
func NewRunContext(run ir.ImportRun, previous *ir.ImportRun) *RunContext {
	cache := NewCache()
	return &RunContext{
		Run:      run,
		Previous: previous,
		Cache:    cache,
		Evidence: NewEvidence(run.ID, cache),
	}
}

// Reset clears the cache and the evidence seen set.
func (rc *RunContext) Reset() {
	rc.Cache.Reset()
	rc.Evidence.Reset()
}

// scope is everything one batch transaction needs.
type scope struct {
	*RunContext
	tx    *store.Tx
	stats *Stats
	batch string
	// account is the handle the batch belongs to; posts of a batch without
	// one fall back to their own blog name.
	account ir.AccountName
}
