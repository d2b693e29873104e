package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trailkeep/internal/ir"
)

func TestEvidence_RecordOncePerRun(t *testing.T) {
	env := newTestEnv(t)
	rc := env.openRun(t, 0)
	ctx := context.Background()

	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	inserted, err := rc.Evidence.Record(ctx, tx, ir.EdgeRename, ByName("alice"), ByName("alicealt"), ir.EdgeContext{})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = rc.Evidence.Record(ctx, tx, ir.EdgeRename, ByName("alice"), ByName("alicealt"), ir.EdgeContext{})
	require.NoError(t, err)
	assert.False(t, inserted)

	// A second worker in the same run hits the unique constraint instead.
	other := NewRunContext(rc.Run, rc.Previous)
	inserted, err = other.Evidence.Record(ctx, tx, ir.EdgeRename, ByName("alice"), ByName("alicealt"), ir.EdgeContext{})
	require.NoError(t, err)
	assert.False(t, inserted)

	require.NoError(t, tx.Commit())
	assert.Equal(t, 1, env.count(t, "identity_edges"))
}

func TestEvidence_NoOps(t *testing.T) {
	env := newTestEnv(t)
	rc := env.openRun(t, 0)
	ctx := context.Background()

	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	alice, err := rc.Cache.Name(ctx, tx, "alice")
	require.NoError(t, err)

	tests := []struct {
		name string
		a, b NameRef
	}{
		{"empty source", NameRef{}, ByName("bob")},
		{"empty dest", ByName("bob"), NameRef{}},
		{"same ref", ByName("bob"), ByName("bob")},
		{"same account by id and name", ByID(alice.ID), ByName("alice")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inserted, err := rc.Evidence.Record(ctx, tx, ir.EdgeRename, tt.a, tt.b, ir.EdgeContext{})
			require.NoError(t, err)
			assert.False(t, inserted)
		})
	}
	require.NoError(t, tx.Commit())
	assert.Equal(t, 0, env.count(t, "identity_edges"))
}

func TestEvidence_UnknownIDFails(t *testing.T) {
	env := newTestEnv(t)
	rc := env.openRun(t, 0)
	ctx := context.Background()

	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = rc.Evidence.Record(ctx, tx, ir.EdgeRename, ByID(999), ByName("bob"), ir.EdgeContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNameNotFound)
}

func TestEvidence_ResetForgetsSeen(t *testing.T) {
	env := newTestEnv(t)
	rc := env.openRun(t, 0)
	ctx := context.Background()

	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = rc.Evidence.Record(ctx, tx, ir.EdgeAuthor, ByName("a"), ByName("b"), ir.EdgeContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, rc.Evidence.Len())

	rc.Reset()
	assert.Equal(t, 0, rc.Evidence.Len())
	assert.Equal(t, 0, rc.Cache.Len())
}

func TestCache_Name(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cache := NewCache()

	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	first, err := cache.Name(ctx, tx, "alice")
	require.NoError(t, err)
	again, err := cache.Name(ctx, tx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	byID, err := cache.NameByID(ctx, tx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Name)

	long, err := cache.Name(ctx, tx, strings.Repeat("x", 40))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", ir.MaxNameLength), long.Name)

	_, err = cache.Name(ctx, tx, "")
	assert.Error(t, err)

	_, err = cache.NameByID(ctx, tx, 12345)
	assert.ErrorIs(t, err, ErrNameNotFound)
}

func TestCache_TagsAndLanguages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cache := NewCache()

	tx, err := env.store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()

	a, err := cache.Tag(ctx, tx, "art")
	require.NoError(t, err)
	b, err := cache.Tag(ctx, tx, "art")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	en, err := cache.Language(ctx, tx, "en")
	require.NoError(t, err)
	assert.NotZero(t, en)
	assert.Equal(t, 2, cache.Len())

	cache.Reset()
	assert.Equal(t, 0, cache.Len())
}
