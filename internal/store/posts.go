package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/trailkeep/internal/ir"
)

const postColumns = `id, source_id, title, kind, type_meta, meta, date, url, is_root,
	root_source_id, from_source_id, account_name_id, from_account_name_id,
	root_account_name_id, history`

// PostBySourceID returns the post with the given external id, or
// ErrNotFound.
func (t *Tx) PostBySourceID(ctx context.Context, sourceID ir.SourceID) (*ir.Post, error) {
	return readPostBySourceID(ctx, t.tx, sourceID)
}

// PostBySourceID returns the post with the given external id, or
// ErrNotFound.
func (s *Store) PostBySourceID(ctx context.Context, sourceID ir.SourceID) (*ir.Post, error) {
	return readPostBySourceID(ctx, s.db, sourceID)
}

// CreatePost inserts a new post and sets p.ID. If another transaction
// created the same source id first, inserted is false and p.ID is the
// existing row's id.
func (t *Tx) CreatePost(ctx context.Context, p *ir.Post) (inserted bool, err error) {
	cols, err := encodePost(p)
	if err != nil {
		return false, fmt.Errorf("create post %s: %w", p.SourceID, err)
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO posts (source_id, title, kind, type_meta, meta, date, url, is_root,
			root_source_id, from_source_id, account_name_id, from_account_name_id,
			root_account_name_id, history)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO NOTHING
	`,
		string(p.SourceID),
		p.Title,
		string(p.Kind),
		cols.typeMeta,
		cols.meta,
		p.Date.Unix(),
		p.URL,
		p.IsRoot,
		nullString(string(p.RootSourceID)),
		nullString(string(p.FromSourceID)),
		p.AccountNameID,
		nullInt64(p.FromAccountNameID),
		nullInt64(p.RootAccountNameID),
		cols.history,
	)
	if err != nil {
		return false, fmt.Errorf("create post %s: %w", p.SourceID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create post %s: rows affected: %w", p.SourceID, err)
	}

	if rowsAffected > 0 {
		p.ID, err = result.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("create post %s: last insert id: %w", p.SourceID, err)
		}
		return true, nil
	}

	err = t.tx.QueryRowContext(ctx, `SELECT id FROM posts WHERE source_id = ?`,
		string(p.SourceID)).Scan(&p.ID)
	if err != nil {
		return false, fmt.Errorf("create post %s: select existing: %w", p.SourceID, err)
	}
	return false, nil
}

// UpdatePost writes every mutable column of p. Kind, date, url, source id
// and the batch account are never rewritten.
func (t *Tx) UpdatePost(ctx context.Context, p *ir.Post) error {
	cols, err := encodePost(p)
	if err != nil {
		return fmt.Errorf("update post %d: %w", p.ID, err)
	}

	_, err = t.tx.ExecContext(ctx, `
		UPDATE posts SET
			title = ?,
			type_meta = ?,
			meta = ?,
			is_root = ?,
			root_source_id = ?,
			from_source_id = ?,
			from_account_name_id = ?,
			root_account_name_id = ?,
			history = ?
		WHERE id = ?
	`,
		p.Title,
		cols.typeMeta,
		cols.meta,
		p.IsRoot,
		nullString(string(p.RootSourceID)),
		nullString(string(p.FromSourceID)),
		nullInt64(p.FromAccountNameID),
		nullInt64(p.RootAccountNameID),
		cols.history,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update post %d: %w", p.ID, err)
	}
	return nil
}

// ListPosts returns every post ordered by id.
func (s *Store) ListPosts(ctx context.Context) ([]*ir.Post, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+postColumns+` FROM posts ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	var out []*ir.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return out, nil
}

type encodedPost struct {
	typeMeta sql.NullString
	meta     string
	history  sql.NullString
}

func encodePost(p *ir.Post) (encodedPost, error) {
	typeMeta, err := ir.EncodeTypeMeta(p.TypeMeta)
	if err != nil {
		return encodedPost{}, err
	}
	meta, err := ir.Canonicalize(p.Meta)
	if err != nil {
		return encodedPost{}, fmt.Errorf("encode meta: %w", err)
	}
	history, err := ir.EncodeHistory(p.History)
	if err != nil {
		return encodedPost{}, err
	}
	return encodedPost{
		typeMeta: nullString(typeMeta),
		meta:     string(meta),
		history:  nullString(history),
	}, nil
}

func readPostBySourceID(ctx context.Context, q queryer, sourceID ir.SourceID) (*ir.Post, error) {
	row := q.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE source_id = ?`, string(sourceID))
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s: %w", sourceID, ErrNotFound)
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*ir.Post, error) {
	var (
		p                        ir.Post
		sourceID, kind, meta     string
		typeMeta, history        sql.NullString
		rootSourceID, fromSource sql.NullString
		fromNameID, rootNameID   sql.NullInt64
		date                     int64
	)
	err := row.Scan(
		&p.ID, &sourceID, &p.Title, &kind, &typeMeta, &meta, &date, &p.URL, &p.IsRoot,
		&rootSourceID, &fromSource, &p.AccountNameID, &fromNameID, &rootNameID, &history,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}

	p.SourceID = ir.SourceID(sourceID)
	p.Kind = ir.PostKind(kind)
	p.Date = time.Unix(date, 0).UTC()
	p.RootSourceID = ir.SourceID(rootSourceID.String)
	p.FromSourceID = ir.SourceID(fromSource.String)
	p.FromAccountNameID = fromNameID.Int64
	p.RootAccountNameID = rootNameID.Int64

	if p.TypeMeta, err = ir.DecodeTypeMeta(p.Kind, typeMeta.String); err != nil {
		return nil, fmt.Errorf("post %d: %w", p.ID, err)
	}
	if err := decodeJSON(meta, &p.Meta); err != nil {
		return nil, fmt.Errorf("post %d: meta: %w", p.ID, err)
	}
	if p.History, err = ir.DecodeHistory(history.String); err != nil {
		return nil, fmt.Errorf("post %d: %w", p.ID, err)
	}
	return &p, nil
}
