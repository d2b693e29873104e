package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/trailkeep/internal/ir"
)

// InsertContent stores a body revision keyed by (SourceID, Version).
// Returns the stored row and whether it was inserted. When the key exists,
// the existing row is returned unchanged, whatever c.Text and
// c.AccountNameID say.
func (t *Tx) InsertContent(ctx context.Context, c ir.ContentBlock) (ir.ContentBlock, bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO contents (source_id, version, text, account_name_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id, version) DO NOTHING
	`,
		string(c.SourceID),
		c.Version,
		c.Text,
		nullInt64(c.AccountNameID),
	)
	if err != nil {
		return ir.ContentBlock{}, false, fmt.Errorf("insert content: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return ir.ContentBlock{}, false, fmt.Errorf("insert content: rows affected: %w", err)
	}

	if rowsAffected > 0 {
		id, err := result.LastInsertId()
		if err != nil {
			return ir.ContentBlock{}, false, fmt.Errorf("insert content: last insert id: %w", err)
		}
		c.ID = id
		return c, true, nil
	}

	existing, err := t.ContentByVersion(ctx, c.SourceID, c.Version)
	if err != nil {
		return ir.ContentBlock{}, false, fmt.Errorf("insert content: select existing: %w", err)
	}
	return existing, false, nil
}

// ContentByVersion returns the content row for (sourceID, version), or
// ErrNotFound.
func (t *Tx) ContentByVersion(ctx context.Context, sourceID ir.SourceID, version string) (ir.ContentBlock, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, source_id, version, text, account_name_id
		FROM contents
		WHERE source_id = ? AND version = ?
	`, string(sourceID), version)
	return scanContentRow(row)
}

// SetContentAccountName backfills a content row's account name. A row that
// already has one is left alone; the return value reports whether the
// backfill happened.
func (t *Tx) SetContentAccountName(ctx context.Context, contentID, nameID int64) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE contents SET account_name_id = ?
		WHERE id = ? AND account_name_id IS NULL
	`, nameID, contentID)
	if err != nil {
		return false, fmt.Errorf("backfill content %d: %w", contentID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("backfill content %d: rows affected: %w", contentID, err)
	}
	return n > 0, nil
}

// LinkContent places a content block at a post slot. An occupied slot is
// left as is.
func (t *Tx) LinkContent(ctx context.Context, pc ir.PostContent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO post_contents (post_id, content_id, position, is_last)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(post_id, position) DO NOTHING
	`, pc.PostID, pc.ContentID, pc.Position, pc.IsLast)
	if err != nil {
		return fmt.Errorf("link content %d to post %d: %w", pc.ContentID, pc.PostID, err)
	}
	return nil
}

// PostContents returns every slot of a post ordered by position, body
// (position -1) first. Version carries the content hash of each slot.
func (t *Tx) PostContents(ctx context.Context, postID int64) ([]ir.PostContent, error) {
	return readPostContents(ctx, t.tx, postID)
}

// DeleteBody removes a post's body slot.
func (t *Tx) DeleteBody(ctx context.Context, postID int64) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM post_contents WHERE post_id = ? AND position = ?
	`, postID, ir.BodyPosition); err != nil {
		return fmt.Errorf("delete body of post %d: %w", postID, err)
	}
	return nil
}

// DeleteTrail removes every trail slot (position >= 0) of a post.
func (t *Tx) DeleteTrail(ctx context.Context, postID int64) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM post_contents WHERE post_id = ? AND position >= 0
	`, postID); err != nil {
		return fmt.Errorf("delete trail of post %d: %w", postID, err)
	}
	return nil
}

// ContentByID returns one content row, or ErrNotFound.
func (s *Store) ContentByID(ctx context.Context, id int64) (ir.ContentBlock, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_id, version, text, account_name_id
		FROM contents
		WHERE id = ?
	`, id)
	return scanContentRow(row)
}

// PostContents returns every slot of a post ordered by position.
func (s *Store) PostContents(ctx context.Context, postID int64) ([]ir.PostContent, error) {
	return readPostContents(ctx, s.db, postID)
}

func readPostContents(ctx context.Context, q queryer, postID int64) ([]ir.PostContent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT pc.post_id, pc.content_id, pc.position, pc.is_last, c.version
		FROM post_contents pc
		JOIN contents c ON c.id = pc.content_id
		WHERE pc.post_id = ?
		ORDER BY pc.position ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("read post contents %d: %w", postID, err)
	}
	defer rows.Close()

	var out []ir.PostContent
	for rows.Next() {
		var pc ir.PostContent
		if err := rows.Scan(&pc.PostID, &pc.ContentID, &pc.Position, &pc.IsLast, &pc.Version); err != nil {
			return nil, fmt.Errorf("scan post content: %w", err)
		}
		out = append(out, pc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post contents: %w", err)
	}
	return out, nil
}

func scanContentRow(row *sql.Row) (ir.ContentBlock, error) {
	var (
		c        ir.ContentBlock
		sourceID string
		nameID   sql.NullInt64
	)
	err := row.Scan(&c.ID, &sourceID, &c.Version, &c.Text, &nameID)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ContentBlock{}, ErrNotFound
	}
	if err != nil {
		return ir.ContentBlock{}, fmt.Errorf("scan content: %w", err)
	}
	c.SourceID = ir.SourceID(sourceID)
	c.AccountNameID = nameID.Int64
	return c, nil
}
