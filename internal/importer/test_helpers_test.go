package importer

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/source"
	"github.com/roach88/trailkeep/internal/store"
	"github.com/roach88/trailkeep/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type testEnv struct {
	store    *store.Store
	importer *Importer
	ledger   *Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := createTestStore(t)
	return &testEnv{
		store:    s,
		importer: New(s, testLogger()),
		ledger:   NewLedger(s, testLogger()),
	}
}

// openRun opens the run for snapshot n and returns fresh worker state.
func (e *testEnv) openRun(t *testing.T, n int) *RunContext {
	t.Helper()
	run, previous, err := e.ledger.Open(context.Background(), testutil.At(n), "test")
	require.NoError(t, err)
	return NewRunContext(run, previous)
}

func (e *testEnv) closeRun(t *testing.T, rc *RunContext) ir.ImportRun {
	t.Helper()
	run, err := e.ledger.Close(context.Background(), rc.Run.ID)
	require.NoError(t, err)
	return run
}

func (e *testEnv) importBatch(t *testing.T, rc *RunContext, b source.Batch) Stats {
	t.Helper()
	stats, err := e.importer.ImportBatch(context.Background(), rc, b)
	require.NoError(t, err)
	return stats
}

// importRun imports batches as one closed run of snapshot n.
func (e *testEnv) importRun(t *testing.T, n int, batches ...source.Batch) (ir.ImportRun, Stats) {
	t.Helper()
	rc := e.openRun(t, n)
	var total Stats
	for _, b := range batches {
		total.Add(e.importBatch(t, rc, b))
	}
	return e.closeRun(t, rc), total
}

func (e *testEnv) post(t *testing.T, sourceID string) *ir.Post {
	t.Helper()
	p, err := e.store.PostBySourceID(context.Background(), ir.SourceID(sourceID))
	require.NoError(t, err)
	return p
}

func (e *testEnv) count(t *testing.T, table string) int {
	t.Helper()
	n, err := e.store.Count(context.Background(), table)
	require.NoError(t, err)
	return n
}

func (e *testEnv) nameID(t *testing.T, name string) int64 {
	t.Helper()
	n, err := e.store.NameByName(context.Background(), name)
	require.NoError(t, err)
	return n.ID
}
