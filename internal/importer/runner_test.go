package importer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/source"
	"github.com/roach88/trailkeep/internal/testutil"
)

func threeBatches() []source.Batch {
	return []source.Batch{
		testutil.Batch("alice/1.json", "alice",
			testutil.Post("1", "alice").Tags("a").Build(),
			testutil.Post("2", "alice").Quote("q", "s").Build()),
		testutil.Batch("bob/1.json", "bob",
			testutil.Post("3", "bob").Build()),
		testutil.Batch("carol/1.json", "carol",
			testutil.Post("4", "carol").RebloggedFrom("alice", "1", "alice", "1").
				Trail(testutil.Layer("alice", "1", "<p>hi</p>")).Build()),
	}
}

func newTestRunner(t *testing.T, workers int) (*Runner, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	r := NewRunner(env.store, Options{Workers: workers, CacheResetEvery: 2}, testLogger()).
		WithTokens(testutil.NewFixedTokenGenerator("tok"))
	return r, env
}

func TestRunner_ImportsAllBatches(t *testing.T) {
	for _, workers := range []int{1, 4} {
		r, env := newTestRunner(t, workers)

		summary, err := r.Run(context.Background(), source.FromBatches("test", testutil.At(0), threeBatches()...))
		require.NoError(t, err)

		assert.Equal(t, 3, summary.Batches)
		assert.Equal(t, 0, summary.Failed)
		assert.Equal(t, 4, summary.Stats.Posts)
		assert.Equal(t, 4, summary.Stats.NewPosts)
		assert.Equal(t, ir.PhaseImportFinished, summary.Run.Phase)
		assert.Equal(t, int64(4), summary.Run.Watermarks.PostID)
		assert.Equal(t, 4, env.count(t, "posts"))

		rows, err := env.store.BatchesForRun(context.Background(), summary.Run.ID)
		require.NoError(t, err)
		require.Len(t, rows, 3)
		for _, row := range rows {
			assert.Equal(t, ir.BatchOK, row.Status)
			assert.Equal(t, "tok", row.Token)
			assert.Contains(t, row.Stats, `"posts":`)
		}
	}
}

func TestRunner_SameSnapshotResumesRun(t *testing.T) {
	r, env := newTestRunner(t, 2)
	ctx := context.Background()

	first, err := r.Run(ctx, source.FromBatches("test", testutil.At(0), threeBatches()...))
	require.NoError(t, err)
	second, err := r.Run(ctx, source.FromBatches("test", testutil.At(0), threeBatches()...))
	require.NoError(t, err)

	assert.Equal(t, first.Run.ID, second.Run.ID)
	assert.Equal(t, 0, second.Stats.NewPosts)
	assert.Equal(t, 0, second.Stats.RevisitedPosts)
	assert.Equal(t, 4, env.count(t, "posts"))
	assert.Equal(t, 1, env.count(t, "import_runs"))
	assert.Equal(t, 3, env.count(t, "import_batches"), "redelivered batches keep one row")
}

func TestRunner_NextSnapshotRevisits(t *testing.T) {
	r, env := newTestRunner(t, 1)
	ctx := context.Background()

	_, err := r.Run(ctx, source.FromBatches("test", testutil.At(0), threeBatches()...))
	require.NoError(t, err)
	second, err := r.Run(ctx, source.FromBatches("test", testutil.At(1), threeBatches()...))
	require.NoError(t, err)

	assert.Equal(t, 4, second.Stats.RevisitedPosts)
	assert.Equal(t, 0, second.Stats.ArchivedPosts)
	assert.Equal(t, 2, env.count(t, "import_runs"))
}

func TestRunner_FailedBatchIsRecordedAndSkipped(t *testing.T) {
	r, env := newTestRunner(t, 1)
	all := threeBatches()
	batches := []source.Batch{
		all[0],
		testutil.Batch("broken.json", "", testutil.Post("9", "").Build()),
		all[1],
	}

	summary, err := r.Run(context.Background(), source.FromBatches("test", testutil.At(0), batches...))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, env.count(t, "posts"))

	rows, err := env.store.BatchesForRun(context.Background(), summary.Run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "broken.json", rows[1].Key)
	assert.Equal(t, ir.BatchFailed, rows[1].Status)
	assert.Contains(t, rows[1].Error, string(ErrCodeMissingAccount))
}

func TestRunner_DecodeErrorIsFailedBatch(t *testing.T) {
	r, env := newTestRunner(t, 1)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"),
		[]byte(`{"blog":{"name":"alice"},"posts":[{"id":1,"type":"text","timestamp":1700000000}]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{"blog":`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.json"), []byte(`{"blog":{"name":"bob"}}`), 0o644))

	src, err := source.OpenDir(dir, source.Options{})
	require.NoError(t, err)
	defer src.Close()

	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Batches)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, env.count(t, "posts"))

	rows, err := env.store.BatchesForRun(context.Background(), summary.Run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ir.BatchOK, rows[0].Status)
	assert.Equal(t, "b.json", rows[1].Key)
	assert.Contains(t, rows[1].Error, string(ErrCodeMalformed))
	assert.Contains(t, rows[2].Error, "dump has no posts")
}

func TestNewWork(t *testing.T) {
	w, err := newWork(source.Batch{}, &source.DecodeError{Key: "b.json", Err: io.ErrUnexpectedEOF})
	require.NoError(t, err)
	assert.Equal(t, "b.json", w.key)
	assert.True(t, IsMalformed(w.err))
	assert.ErrorIs(t, w.err, io.ErrUnexpectedEOF)

	_, err = newWork(source.Batch{}, os.ErrPermission)
	assert.ErrorIs(t, err, os.ErrPermission)

	w, err = newWork(testutil.Batch("a.json", "alice"), nil)
	require.NoError(t, err)
	assert.Equal(t, "a.json", w.key)
	assert.NoError(t, w.err)
	assert.False(t, IsMalformed(w.err))
}

func TestRunner_CancelledContext(t *testing.T) {
	r, _ := newTestRunner(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, source.FromBatches("test", testutil.At(0), threeBatches()...))
	assert.Error(t, err)
}

func TestRunner_RecordManualEdge(t *testing.T) {
	r, env := newTestRunner(t, 1)
	ctx := context.Background()

	_, err := r.Run(ctx, source.FromBatches("test", testutil.At(0), threeBatches()...))
	require.NoError(t, err)

	inserted, err := r.RecordManualEdge(ctx, "alice", "carol", "")
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, 1, env.count(t, "identity_edges"))
}
