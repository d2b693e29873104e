package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindOrCreateNameConflictThenSelect(t *testing.T) {
	s := createTestStore(t)
	tx := beginTest(t, s)
	ctx := context.Background()

	first, inserted, err := tx.FindOrCreateName(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "alice", first.Name)
	assert.Zero(t, first.AccountID)

	second, inserted, err := tx.FindOrCreateName(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, second.ID)
}

func TestNameByIDNotFound(t *testing.T) {
	s := createTestStore(t)
	tx := beginTest(t, s)

	_, err := tx.NameByID(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNameByName(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	created, _, err := tx.FindOrCreateName(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	found, err := s.NameByName(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, created, found)

	_, err = s.NameByName(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNameLengthConstraint(t *testing.T) {
	s := createTestStore(t)
	tx := beginTest(t, s)

	_, _, err := tx.FindOrCreateName(context.Background(), "this-name-is-definitely-longer-than-32")
	assert.Error(t, err)
}

func TestFindOrCreateTagAndLanguage(t *testing.T) {
	s := createTestStore(t)
	tx := beginTest(t, s)
	ctx := context.Background()

	a, err := tx.FindOrCreateTag(ctx, "art")
	require.NoError(t, err)
	b, err := tx.FindOrCreateTag(ctx, "art")
	require.NoError(t, err)
	c, err := tx.FindOrCreateTag(ctx, "music")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	en1, err := tx.FindOrCreateLanguage(ctx, "en")
	require.NoError(t, err)
	en2, err := tx.FindOrCreateLanguage(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, en1, en2)
}
