package importer

import (
	"context"
	"log/slog"

	"github.com/roach88/trailkeep/internal/ir"
)

// ContentStore deduplicates body revisions by (source id, content hash).
type ContentStore struct {
	logger *slog.Logger
}

// NewContentStore returns a content store logging to logger.
func NewContentStore(logger *slog.Logger) *ContentStore {
	return &ContentStore{logger: logger}
}

// GetOrCreate returns the id of the block holding text under sourceID,
// inserting it on first sight. accountNameID 0 means unknown. A stored
// block without an account name is backfilled once; a stored block with
// a different one yields a rename edge (new -> stored).
func (s *ContentStore) GetOrCreate(ctx context.Context, sc *scope, sourceID ir.SourceID, text string, accountNameID int64) (int64, bool, error) {
	text = ir.NormalizeMedia(text)
	block := ir.ContentBlock{
		SourceID:      sourceID,
		Version:       ir.ContentVersion(text),
		Text:          text,
		AccountNameID: accountNameID,
	}

	stored, created, err := sc.tx.InsertContent(ctx, block)
	if err != nil {
		return 0, false, err
	}
	if created {
		sc.stats.NewContent++
		return stored.ID, true, nil
	}
	sc.stats.DupContent++

	switch {
	case accountNameID == 0 || stored.AccountNameID == accountNameID:
	case stored.AccountNameID == 0:
		if _, err := sc.tx.SetContentAccountName(ctx, stored.ID, accountNameID); err != nil {
			return 0, false, err
		}
	default:
		inserted, err := sc.Evidence.Record(ctx, sc.tx, ir.EdgeRename,
			ByID(accountNameID), ByID(stored.AccountNameID),
			ir.EdgeContext{ContentID: stored.ID})
		if err != nil {
			return 0, false, err
		}
		if inserted {
			sc.stats.Edges++
			s.logger.Debug("content owner differs",
				"content_id", stored.ID,
				"source_id", string(sourceID),
				"stored_name_id", stored.AccountNameID,
				"observed_name_id", accountNameID)
		}
	}
	return stored.ID, false, nil
}
