package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/trailkeep/internal/ir"
)

// FindOrCreateName returns the account name row for name, inserting it on
// first sight. name must already be truncated to ir.MaxNameLength.
func (t *Tx) FindOrCreateName(ctx context.Context, name string) (ir.AccountName, bool, error) {
	id, inserted, err := findOrCreateByName(ctx, t.tx, "account_names", name)
	if err != nil {
		return ir.AccountName{}, false, fmt.Errorf("find or create name %q: %w", name, err)
	}
	n, err := t.NameByID(ctx, id)
	if err != nil {
		return ir.AccountName{}, false, err
	}
	return n, inserted, nil
}

// NameByID returns the account name with id, or ErrNotFound.
func (t *Tx) NameByID(ctx context.Context, id int64) (ir.AccountName, error) {
	return readName(ctx, t.tx, id)
}

// NameByName returns the account name row for name, or ErrNotFound.
func (s *Store) NameByName(ctx context.Context, name string) (ir.AccountName, error) {
	var (
		n         ir.AccountName
		accountID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, account_id FROM account_names WHERE name = ?
	`, name).Scan(&n.ID, &n.Name, &accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.AccountName{}, fmt.Errorf("name %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return ir.AccountName{}, fmt.Errorf("read name %q: %w", name, err)
	}
	n.AccountID = accountID.Int64
	return n, nil
}

// FindOrCreateTag returns the id of the tag named name.
func (t *Tx) FindOrCreateTag(ctx context.Context, name string) (int64, error) {
	id, _, err := findOrCreateByName(ctx, t.tx, "tags", name)
	if err != nil {
		return 0, fmt.Errorf("find or create tag %q: %w", name, err)
	}
	return id, nil
}

// FindOrCreateLanguage returns the id of the language named name.
func (t *Tx) FindOrCreateLanguage(ctx context.Context, name string) (int64, error) {
	id, _, err := findOrCreateByName(ctx, t.tx, "languages", name)
	if err != nil {
		return 0, fmt.Errorf("find or create language %q: %w", name, err)
	}
	return id, nil
}

func readName(ctx context.Context, q queryer, id int64) (ir.AccountName, error) {
	var (
		n         ir.AccountName
		accountID sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, account_id FROM account_names WHERE id = ?
	`, id).Scan(&n.ID, &n.Name, &accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.AccountName{}, fmt.Errorf("name id %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.AccountName{}, fmt.Errorf("read name %d: %w", id, err)
	}
	n.AccountID = accountID.Int64
	return n, nil
}

// findOrCreateByName is the conflict-then-select insert shared by the
// name-keyed tables. table is always a constant from this package.
func findOrCreateByName(ctx context.Context, q queryer, table, name string) (id int64, inserted bool, err error) {
	result, err := q.ExecContext(ctx,
		"INSERT INTO "+table+" (name) VALUES (?) ON CONFLICT(name) DO NOTHING", name)
	if err != nil {
		return 0, false, fmt.Errorf("insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}

	if rowsAffected > 0 {
		id, err = result.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("last insert id: %w", err)
		}
		return id, true, nil
	}

	err = q.QueryRowContext(ctx, "SELECT id FROM "+table+" WHERE name = ?", name).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("select existing: %w", err)
	}
	return id, false, nil
}
