package store

import (
	"context"
	"fmt"

	"github.com/roach88/trailkeep/internal/ir"
)

// LinkTag places a tag at a post position. An occupied position is left
// as is.
func (t *Tx) LinkTag(ctx context.Context, pt ir.PostTag) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO post_tags (post_id, tag_id, position)
		VALUES (?, ?, ?)
		ON CONFLICT(post_id, position) DO NOTHING
	`, pt.PostID, pt.TagID, pt.Position)
	if err != nil {
		return fmt.Errorf("link tag %d to post %d: %w", pt.TagID, pt.PostID, err)
	}
	return nil
}

// PostTags returns a post's tags ordered by position, with names.
func (t *Tx) PostTags(ctx context.Context, postID int64) ([]ir.PostTag, error) {
	return readPostTags(ctx, t.tx, postID)
}

// PostTags returns a post's tags ordered by position, with names.
func (s *Store) PostTags(ctx context.Context, postID int64) ([]ir.PostTag, error) {
	return readPostTags(ctx, s.db, postID)
}

// DeletePostTags removes every tag row of a post.
func (t *Tx) DeletePostTags(ctx context.Context, postID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM post_tags WHERE post_id = ?`, postID); err != nil {
		return fmt.Errorf("delete tags of post %d: %w", postID, err)
	}
	return nil
}

// FindOrCreateResource returns the resource stored under r.URL, inserting
// r on first sight.
func (t *Tx) FindOrCreateResource(ctx context.Context, r ir.Resource) (ir.Resource, bool, error) {
	meta, err := ir.Canonicalize(r.Meta)
	if err != nil {
		return ir.Resource{}, false, fmt.Errorf("resource %q: meta: %w", r.URL, err)
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO resources (kind, url, external, meta)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING
	`, string(r.Kind), r.URL, r.External, string(meta))
	if err != nil {
		return ir.Resource{}, false, fmt.Errorf("insert resource %q: %w", r.URL, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return ir.Resource{}, false, fmt.Errorf("insert resource %q: rows affected: %w", r.URL, err)
	}
	if rowsAffected > 0 {
		if r.ID, err = result.LastInsertId(); err != nil {
			return ir.Resource{}, false, fmt.Errorf("insert resource %q: last insert id: %w", r.URL, err)
		}
		return r, true, nil
	}

	var (
		existing ir.Resource
		kind     string
		rawMeta  string
	)
	err = t.tx.QueryRowContext(ctx, `
		SELECT id, kind, url, external, meta FROM resources WHERE url = ?
	`, r.URL).Scan(&existing.ID, &kind, &existing.URL, &existing.External, &rawMeta)
	if err != nil {
		return ir.Resource{}, false, fmt.Errorf("insert resource %q: select existing: %w", r.URL, err)
	}
	existing.Kind = ir.ResourceKind(kind)
	if err := decodeJSON(rawMeta, &existing.Meta); err != nil {
		return ir.Resource{}, false, fmt.Errorf("resource %d: meta: %w", existing.ID, err)
	}
	return existing, false, nil
}

// LinkResource places a resource at a post position. An occupied position
// is left as is.
func (t *Tx) LinkResource(ctx context.Context, pr ir.PostResource) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO post_resources (post_id, resource_id, position)
		VALUES (?, ?, ?)
		ON CONFLICT(post_id, position) DO NOTHING
	`, pr.PostID, pr.ResourceID, pr.Position)
	if err != nil {
		return fmt.Errorf("link resource %d to post %d: %w", pr.ResourceID, pr.PostID, err)
	}
	return nil
}

// PostResources returns a post's resources ordered by position, with urls.
func (t *Tx) PostResources(ctx context.Context, postID int64) ([]ir.PostResource, error) {
	return readPostResources(ctx, t.tx, postID)
}

// PostResources returns a post's resources ordered by position, with urls.
func (s *Store) PostResources(ctx context.Context, postID int64) ([]ir.PostResource, error) {
	return readPostResources(ctx, s.db, postID)
}

// DeletePostResources removes every resource row of a post.
func (t *Tx) DeletePostResources(ctx context.Context, postID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM post_resources WHERE post_id = ?`, postID); err != nil {
		return fmt.Errorf("delete resources of post %d: %w", postID, err)
	}
	return nil
}

func readPostTags(ctx context.Context, q queryer, postID int64) ([]ir.PostTag, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT pt.post_id, pt.tag_id, pt.position, t.name
		FROM post_tags pt
		JOIN tags t ON t.id = pt.tag_id
		WHERE pt.post_id = ?
		ORDER BY pt.position ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("read tags of post %d: %w", postID, err)
	}
	defer rows.Close()

	var out []ir.PostTag
	for rows.Next() {
		var pt ir.PostTag
		if err := rows.Scan(&pt.PostID, &pt.TagID, &pt.Position, &pt.Name); err != nil {
			return nil, fmt.Errorf("scan post tag: %w", err)
		}
		out = append(out, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post tags: %w", err)
	}
	return out, nil
}

func readPostResources(ctx context.Context, q queryer, postID int64) ([]ir.PostResource, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT pr.post_id, pr.resource_id, pr.position, r.url
		FROM post_resources pr
		JOIN resources r ON r.id = pr.resource_id
		WHERE pr.post_id = ?
		ORDER BY pr.position ASC
	`, postID)
	if err != nil {
		return nil, fmt.Errorf("read resources of post %d: %w", postID, err)
	}
	defer rows.Close()

	var out []ir.PostResource
	for rows.Next() {
		var pr ir.PostResource
		if err := rows.Scan(&pr.PostID, &pr.ResourceID, &pr.Position, &pr.URL); err != nil {
			return nil, fmt.Errorf("scan post resource: %w", err)
		}
		out = append(out, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate post resources: %w", err)
	}
	return out, nil
}
