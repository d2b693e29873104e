package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/trailkeep/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// beginTest opens a transaction that is rolled back at cleanup unless the
// test committed it.
func beginTest(t *testing.T, s *Store) *Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

// createTestRun creates a run at a fixed timestamp offset by n hours.
func createTestRun(t *testing.T, s *Store, n int) ir.ImportRun {
	t.Helper()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Hour)
	run, _, err := s.FindOrCreateRun(context.Background(), ts, "test")
	require.NoError(t, err)
	return run
}

// createTestPost inserts a minimal text post for account.
func createTestPost(t *testing.T, tx *Tx, sourceID string, accountNameID int64) *ir.Post {
	t.Helper()
	p := &ir.Post{
		SourceID:      ir.SourceID(sourceID),
		Title:         "title " + sourceID,
		Kind:          ir.KindText,
		Date:          time.Unix(1700000000, 0).UTC(),
		URL:           "https://example.tumblr.com/post/" + sourceID,
		IsRoot:        true,
		AccountNameID: accountNameID,
		History:       ir.History{},
	}
	inserted, err := tx.CreatePost(context.Background(), p)
	require.NoError(t, err)
	require.True(t, inserted)
	return p
}
