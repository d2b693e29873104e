package importer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/source"
)

// Linker attaches resources, trail blocks and tags to a reconciled post.
// Every join insert ignores occupied positions, so linking the same post
// again is a no-op.
type Linker struct {
	content *ContentStore
	logger  *slog.Logger
}

// NewLinker returns a linker storing trail blocks through content.
func NewLinker(content *ContentStore, logger *slog.Logger) *Linker {
	return &Linker{content: content, logger: logger}
}

// Link runs for every post of a batch regardless of reconcile outcome.
func (l *Linker) Link(ctx context.Context, sc *scope, post *ir.Post, p *source.Post) error {
	if err := l.linkResources(ctx, sc, post, p); err != nil {
		return fmt.Errorf("resources: %w", err)
	}
	if err := l.linkTrail(ctx, sc, post, p); err != nil {
		return fmt.Errorf("trail: %w", err)
	}
	if err := l.linkTags(ctx, sc, post, p); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	if p.PostAuthor != "" && !p.IsSubmission {
		inserted, err := sc.Evidence.Record(ctx, sc.tx, ir.EdgeAuthor,
			ByName(p.PostAuthor), ByID(sc.account.ID),
			ir.EdgeContext{PostID: post.ID})
		if err != nil {
			return fmt.Errorf("author: %w", err)
		}
		if inserted {
			sc.stats.Edges++
		}
	}
	return nil
}

func (l *Linker) linkResources(ctx context.Context, sc *scope, post *ir.Post, p *source.Post) error {
	position := 0
	for i, ph := range p.Photos {
		size, ok := photoURL(ph)
		if !ok {
			sc.stats.Skipped++
			l.logger.Info("extraction skipped",
				"run_id", sc.Run.ID,
				"batch", sc.batch,
				"post_id", post.ID,
				"field", fmt.Sprintf("photos[%d]", i),
				"reason", "photo has no sizes")
			continue
		}

		key, full := ir.ResourceKey(size.URL)
		res, created, err := sc.tx.FindOrCreateResource(ctx, ir.Resource{
			Kind:     ir.ResourcePhoto,
			URL:      key,
			External: ir.IsExternalURL(size.URL),
			Meta: ir.ResourceMeta{
				Caption: ir.NormalizeMedia(ph.Caption),
				Width:   size.Width,
				Height:  size.Height,
				FullURL: full,
			},
		})
		if err != nil {
			return err
		}
		if created {
			sc.stats.NewResources++
		}
		if err := sc.tx.LinkResource(ctx, ir.PostResource{
			PostID:     post.ID,
			ResourceID: res.ID,
			Position:   position,
		}); err != nil {
			return err
		}
		position++
	}
	return nil
}

func (l *Linker) linkTrail(ctx context.Context, sc *scope, post *ir.Post, p *source.Post) error {
	for i, item := range p.Trail {
		var nameID int64
		if item.Blog.Name != "" {
			n, err := sc.Cache.Name(ctx, sc.tx, item.Blog.Name)
			if err != nil {
				return err
			}
			nameID = n.ID
		}

		contentID, _, err := l.content.GetOrCreate(ctx, sc, item.Post.ID.TrimPadding(), item.ContentRaw, nameID)
		if err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		last := i == len(p.Trail)-1 && ir.TruncateName(item.Blog.Name) == sc.account.Name
		if err := sc.tx.LinkContent(ctx, ir.PostContent{
			PostID:    post.ID,
			ContentID: contentID,
			Position:  i,
			IsLast:    last,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (l *Linker) linkTags(ctx context.Context, sc *scope, post *ir.Post, p *source.Post) error {
	for i, name := range p.Tags {
		tagID, err := sc.Cache.Tag(ctx, sc.tx, name)
		if err != nil {
			return err
		}
		if err := sc.tx.LinkTag(ctx, ir.PostTag{PostID: post.ID, TagID: tagID, Position: i}); err != nil {
			return err
		}
	}
	return nil
}
