package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/store"
)

// Cache memoizes name, tag and language rows for one worker. It is not
// safe for concurrent use; every worker owns its own.
//
// Entries created inside a transaction that later rolls back would point
// at rows that no longer exist, so the owner resets the cache after a
// failed batch.
type Cache struct {
	names     map[string]ir.AccountName
	namesByID map[int64]ir.AccountName
	tags      map[string]int64
	languages map[string]int64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	c.Reset()
	return c
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.names = make(map[string]ir.AccountName)
	c.namesByID = make(map[int64]ir.AccountName)
	c.tags = make(map[string]int64)
	c.languages = make(map[string]int64)
}

// Len is the number of cached entries.
func (c *Cache) Len() int {
	return len(c.names) + len(c.tags) + len(c.languages)
}

// Name returns the row for name, creating it on first sight. Names are
// truncated to ir.MaxNameLength first.
func (c *Cache) Name(ctx context.Context, tx *store.Tx, name string) (ir.AccountName, error) {
	name = ir.TruncateName(name)
	if name == "" {
		return ir.AccountName{}, errors.New("empty account name")
	}
	if n, ok := c.names[name]; ok {
		return n, nil
	}
	n, _, err := tx.FindOrCreateName(ctx, name)
	if err != nil {
		return ir.AccountName{}, err
	}
	c.remember(n)
	return n, nil
}

// NameByID returns the row for id. An unknown id is an error wrapping
// ErrNameNotFound; it is never recreated.
func (c *Cache) NameByID(ctx context.Context, tx *store.Tx, id int64) (ir.AccountName, error) {
	if n, ok := c.namesByID[id]; ok {
		return n, nil
	}
	n, err := tx.NameByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ir.AccountName{}, fmt.Errorf("name id %d: %w", id, ErrNameNotFound)
	}
	if err != nil {
		return ir.AccountName{}, err
	}
	c.remember(n)
	return n, nil
}

// Tag returns the id of the tag named name.
func (c *Cache) Tag(ctx context.Context, tx *store.Tx, name string) (int64, error) {
	if id, ok := c.tags[name]; ok {
		return id, nil
	}
	id, err := tx.FindOrCreateTag(ctx, name)
	if err != nil {
		return 0, err
	}
	c.tags[name] = id
	return id, nil
}

// Language returns the id of the language named name.
func (c *Cache) Language(ctx context.Context, tx *store.Tx, name string) (int64, error) {
	if id, ok := c.languages[name]; ok {
		return id, nil
	}
	id, err := tx.FindOrCreateLanguage(ctx, name)
	if err != nil {
		return 0, err
	}
	c.languages[name] = id
	return id, nil
}

func (c *Cache) remember(n ir.AccountName) {
	c.names[n.Name] = n
	c.namesByID[n.ID] = n
}
