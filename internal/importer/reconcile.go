package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/source"
	"github.com/roach88/trailkeep/internal/store"
)

// Outcome is what reconciliation did with a post.
type Outcome int

const (
	// OutcomeCreated means the post was unseen and a row was created.
	OutcomeCreated Outcome = iota
	// OutcomeUnchanged means the stored row needed no revisit.
	OutcomeUnchanged
	// OutcomeRevisited means the stored row was diffed against the
	// observation (it may or may not have changed).
	OutcomeRevisited
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeRevisited:
		return "revisited"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// observation is a post as seen in this batch, in stored form.
type observation struct {
	post ir.Post
	// body is the normalized body text, "" when the post has none.
	body string
	// bodyKey is the source id the body is stored under: the reblog root
	// when there is one.
	bodyKey ir.SourceID
	skips   []Skip
	src     *source.Post
}

func (o observation) tags() []string {
	return o.src.Tags
}

// trailVersions is the content hash of every trail layer, oldest first.
func (o observation) trailVersions() []string {
	out := make([]string, len(o.src.Trail))
	for i, item := range o.src.Trail {
		out[i] = ir.ContentVersion(item.ContentRaw)
	}
	return out
}

// resourceKeys is the stored url key of every photo that has a usable
// size, in source order.
func (o observation) resourceKeys() []string {
	var out []string
	for _, ph := range o.src.Photos {
		size, ok := photoURL(ph)
		if !ok {
			continue
		}
		key, _ := ir.ResourceKey(size.URL)
		out = append(out, key)
	}
	return out
}

// Reconciler creates unseen posts and diffs previously seen ones.
type Reconciler struct {
	content *ContentStore
	logger  *slog.Logger
}

// NewReconciler returns a reconciler storing bodies through content.
func NewReconciler(content *ContentStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{content: content, logger: logger}
}

// Reconcile brings the stored row for p in line with the observation and
// returns it.
func (r *Reconciler) Reconcile(ctx context.Context, sc *scope, p *source.Post) (*ir.Post, Outcome, error) {
	existing, err := lookupPost(ctx, sc, p.ID)
	if err != nil {
		return nil, 0, err
	}
	if existing != nil && !needsRevisit(sc.RunContext, existing) {
		return existing, OutcomeUnchanged, nil
	}

	obs, err := r.observe(ctx, sc, p)
	if err != nil {
		return nil, 0, err
	}
	r.logSkips(sc, obs)

	if existing == nil {
		return r.create(ctx, sc, obs)
	}
	if err := r.revisit(ctx, sc, existing, obs); err != nil {
		return nil, 0, err
	}
	return existing, OutcomeRevisited, nil
}

// needsRevisit reports whether a stored post should be diffed in this run.
// Only the run immediately before the current one is consulted. Archives
// are keyed by the run that wrote them, so the guard against diffing twice
// checks the current run's entry rather than the previous run's.
func needsRevisit(rc *RunContext, p *ir.Post) bool {
	if rc.Previous == nil || rc.Previous.Watermarks.PostID == 0 {
		return false
	}
	return p.ID <= rc.Previous.Watermarks.PostID && !p.History.Has(rc.Run.ID)
}

func (r *Reconciler) observe(ctx context.Context, sc *scope, p *source.Post) (observation, error) {
	account := sc.account

	meta := ir.PostMeta{IsSubmission: p.IsSubmission}
	if p.SourceTitle != "" || p.SourceURL != "" {
		meta.Source = &ir.PostSource{
			Title: ir.NormalizeMedia(p.SourceTitle),
			URL:   ir.NormalizeMedia(p.SourceURL),
		}
	}
	if p.InteractabilityReblog != "" && p.InteractabilityReblog != "everyone" {
		meta.InteractabilityReblog = p.InteractabilityReblog
	}
	if p.PostAuthor != "" {
		author, err := sc.Cache.Name(ctx, sc.tx, p.PostAuthor)
		if err != nil {
			return observation{}, fmt.Errorf("post author: %w", err)
		}
		meta.AuthorNameID = author.ID
	}

	var fromNameID int64
	if p.RebloggedFromName != "" {
		from, err := sc.Cache.Name(ctx, sc.tx, p.RebloggedFromName)
		if err != nil {
			return observation{}, fmt.Errorf("reblogged from: %w", err)
		}
		fromNameID = from.ID
	}
	root, err := sc.Cache.Name(ctx, sc.tx, rootAccountName(p, account.Name))
	if err != nil {
		return observation{}, fmt.Errorf("root account: %w", err)
	}

	ex := extractKind(p)
	typeMeta, err := ir.SanitizeTypeMeta(ex.meta)
	if err != nil {
		return observation{}, err
	}

	obs := observation{
		post: ir.Post{
			SourceID:          p.ID,
			Title:             ex.title,
			Kind:              ir.PostKind(p.Type),
			TypeMeta:          typeMeta,
			Meta:              meta,
			Date:              time.Unix(p.Timestamp, 0).UTC(),
			URL:               p.PostURL,
			IsRoot:            isRoot(p, account.Name),
			RootSourceID:      p.RebloggedRootID,
			FromSourceID:      p.RebloggedFromID,
			AccountNameID:     account.ID,
			FromAccountNameID: fromNameID,
			RootAccountNameID: root.ID,
			History:           ir.History{},
		},
		body:    ir.NormalizeMedia(ex.body),
		bodyKey: p.RebloggedRootID,
		skips:   ex.skips,
		src:     p,
	}
	if obs.bodyKey == "" {
		obs.bodyKey = p.ID
	}
	return obs, nil
}

func (r *Reconciler) create(ctx context.Context, sc *scope, obs observation) (*ir.Post, Outcome, error) {
	post := obs.post
	inserted, err := sc.tx.CreatePost(ctx, &post)
	if err != nil {
		return nil, 0, err
	}
	if !inserted {
		// Another transaction created it between lookup and insert.
		existing, err := lookupPost(ctx, sc, post.SourceID)
		if err != nil {
			return nil, 0, err
		}
		return existing, OutcomeUnchanged, nil
	}
	sc.stats.NewPosts++

	if err := r.attachBody(ctx, sc, &post, obs); err != nil {
		return nil, 0, err
	}
	return &post, OutcomeCreated, nil
}

// attachBody records the body (if any) and places it at the body slot.
// An occupied slot is left alone.
func (r *Reconciler) attachBody(ctx context.Context, sc *scope, post *ir.Post, obs observation) error {
	if obs.body == "" {
		return nil
	}
	contentID, _, err := r.content.GetOrCreate(ctx, sc, obs.bodyKey, obs.body, 0)
	if err != nil {
		return fmt.Errorf("post body: %w", err)
	}
	return sc.tx.LinkContent(ctx, ir.PostContent{
		PostID:    post.ID,
		ContentID: contentID,
		Position:  ir.BodyPosition,
	})
}

// revisit diffs a stored post against obs. Replaced values are collected
// in one archive stored under the current run.
func (r *Reconciler) revisit(ctx context.Context, sc *scope, stored *ir.Post, obs observation) error {
	log := r.postLogger(sc, stored)
	seen := obs.post
	var (
		arch    ir.Archive
		changed bool
	)

	if err := r.diffIdentity(ctx, sc, log, stored, &seen, &arch, &changed); err != nil {
		return err
	}

	if stored.IsRoot != seen.IsRoot {
		log.Warn("root flag disagrees", "stored", stored.IsRoot, "observed", seen.IsRoot)
		if stored.IsRoot {
			stored.IsRoot = false
			changed = true
		}
	}

	if seen.Meta.IsSubmission && !stored.Meta.IsSubmission {
		stored.Meta.IsSubmission = true
		changed = true
	}

	if err := r.diffTags(ctx, sc, stored, obs, &arch); err != nil {
		return err
	}
	if err := r.diffBody(ctx, sc, stored, obs, &arch); err != nil {
		return err
	}
	if err := r.diffResources(ctx, sc, stored, obs, &arch); err != nil {
		return err
	}

	if stored.Title != seen.Title {
		arch.Title = stored.Title
		stored.Title = seen.Title
		changed = true
	}

	// Type metadata is decoded by the stored kind, which never changes, so
	// a kind change leaves the metadata alone.
	if stored.Kind != seen.Kind {
		log.Warn("post kind changed", "stored", stored.Kind, "observed", seen.Kind)
	} else {
		equal, err := ir.TypeMetaEqual(stored.TypeMeta, seen.TypeMeta)
		if err != nil {
			return fmt.Errorf("compare metadata: %w", err)
		}
		if !equal {
			if err := arch.ArchiveMeta(stored.TypeMeta); err != nil {
				return err
			}
			stored.TypeMeta = seen.TypeMeta
			changed = true
		}
	}
	if !stored.Date.Equal(seen.Date) {
		log.Warn("post date changed", "stored", stored.Date, "observed", seen.Date)
	}

	sc.stats.RevisitedPosts++
	if !arch.IsEmpty() {
		if stored.History == nil {
			stored.History = ir.History{}
		}
		stored.History[sc.Run.ID] = arch
		sc.stats.ArchivedPosts++
		changed = true
	}
	if changed {
		if err := sc.tx.UpdatePost(ctx, stored); err != nil {
			return err
		}
	}

	return r.attachBody(ctx, sc, stored, obs)
}

// diffIdentity handles the account name and lineage fields: mismatches
// between two known values become rename evidence, unknown stored values
// are backfilled.
func (r *Reconciler) diffIdentity(ctx context.Context, sc *scope, log *slog.Logger, stored, seen *ir.Post, arch *ir.Archive, changed *bool) error {
	rename := func(observed, kept int64, field string) error {
		inserted, err := sc.Evidence.Record(ctx, sc.tx, ir.EdgeRename, ByID(observed), ByID(kept),
			ir.EdgeContext{PostID: stored.ID, Type: field})
		if err != nil {
			return err
		}
		if inserted {
			sc.stats.Edges++
		}
		log.Warn("account name differs", "field", field, "stored_name_id", kept, "observed_name_id", observed)
		return nil
	}

	if seen.AccountNameID != stored.AccountNameID {
		if err := rename(seen.AccountNameID, stored.AccountNameID, "main"); err != nil {
			return err
		}
	}

	switch {
	case seen.FromAccountNameID == 0 || seen.FromAccountNameID == stored.FromAccountNameID:
	case stored.FromAccountNameID == 0:
		stored.FromAccountNameID = seen.FromAccountNameID
		arch.FromAccount = ir.EmptyMarker
		*changed = true
	default:
		if err := rename(seen.FromAccountNameID, stored.FromAccountNameID, "from"); err != nil {
			return err
		}
	}

	switch {
	case seen.RootAccountNameID == 0 || seen.RootAccountNameID == stored.RootAccountNameID:
	case stored.RootAccountNameID == 0:
		stored.RootAccountNameID = seen.RootAccountNameID
		arch.RootAccount = ir.EmptyMarker
		*changed = true
	default:
		if err := rename(seen.RootAccountNameID, stored.RootAccountNameID, "root"); err != nil {
			return err
		}
	}

	switch {
	case seen.RootSourceID == "" || seen.RootSourceID == stored.RootSourceID:
	case stored.RootSourceID == "":
		stored.RootSourceID = seen.RootSourceID
		arch.RootSourceID = ir.EmptyMarker
		*changed = true
	default:
		log.Warn("root source id differs", "stored", stored.RootSourceID, "observed", seen.RootSourceID)
	}

	switch {
	case seen.FromSourceID == "" || seen.FromSourceID == stored.FromSourceID:
	case stored.FromSourceID == "":
		stored.FromSourceID = seen.FromSourceID
		arch.FromSourceID = ir.EmptyMarker
		*changed = true
	default:
		log.Warn("from source id differs", "stored", stored.FromSourceID, "observed", seen.FromSourceID)
	}
	return nil
}

func (r *Reconciler) diffTags(ctx context.Context, sc *scope, stored *ir.Post, obs observation, arch *ir.Archive) error {
	rows, err := sc.tx.PostTags(ctx, stored.ID)
	if err != nil {
		return err
	}
	names := make([]string, len(rows))
	ids := make([]int64, len(rows))
	for i, row := range rows {
		names[i] = row.Name
		ids[i] = row.TagID
	}
	if slices.Equal(names, obs.tags()) {
		return nil
	}
	arch.Tags = ids
	return sc.tx.DeletePostTags(ctx, stored.ID)
}

// diffBody compares the body slot and the trail. A replaced body is
// archived by content id, a removed trail as its full id sequence.
func (r *Reconciler) diffBody(ctx context.Context, sc *scope, stored *ir.Post, obs observation, arch *ir.Archive) error {
	slots, err := sc.tx.PostContents(ctx, stored.ID)
	if err != nil {
		return err
	}

	switch {
	case len(slots) > 0 && slots[0].Position == ir.BodyPosition:
		body := slots[0]
		slots = slots[1:]
		if obs.body == "" || body.Version != ir.ContentVersion(obs.body) {
			arch.ArchiveRoot(body.ContentID)
			if err := sc.tx.DeleteBody(ctx, stored.ID); err != nil {
				return err
			}
		}
	case obs.body != "":
		arch.ArchiveRoot(ir.NoPriorBody)
	}

	storedTrail := make([]string, len(slots))
	ids := make([]int64, len(slots))
	for i, s := range slots {
		storedTrail[i] = s.Version
		ids[i] = s.ContentID
	}
	if slices.Equal(storedTrail, obs.trailVersions()) {
		return nil
	}
	arch.Trail = ids
	return sc.tx.DeleteTrail(ctx, stored.ID)
}

func (r *Reconciler) diffResources(ctx context.Context, sc *scope, stored *ir.Post, obs observation, arch *ir.Archive) error {
	rows, err := sc.tx.PostResources(ctx, stored.ID)
	if err != nil {
		return err
	}
	urls := make([]string, len(rows))
	ids := make([]int64, len(rows))
	for i, row := range rows {
		urls[i] = row.URL
		ids[i] = row.ResourceID
	}
	if slices.Equal(urls, obs.resourceKeys()) {
		return nil
	}
	arch.Resources = ids
	return sc.tx.DeletePostResources(ctx, stored.ID)
}

func (r *Reconciler) postLogger(sc *scope, p *ir.Post) *slog.Logger {
	return r.logger.With(
		"run_id", sc.Run.ID,
		"batch", sc.batch,
		"post_id", p.ID,
		"source_id", string(p.SourceID),
	)
}

func (r *Reconciler) logSkips(sc *scope, obs observation) {
	for _, s := range obs.skips {
		sc.stats.Skipped++
		r.logger.Info("extraction skipped",
			"run_id", sc.Run.ID,
			"batch", sc.batch,
			"source_id", string(obs.post.SourceID),
			"field", s.Field,
			"reason", s.Reason)
	}
}

// lookupPost returns the stored post for sourceID, nil when unseen.
func lookupPost(ctx context.Context, sc *scope, sourceID ir.SourceID) (*ir.Post, error) {
	p, err := sc.tx.PostBySourceID(ctx, sourceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
