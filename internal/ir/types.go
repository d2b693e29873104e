package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SourceID is the platform's external identifier for a post or trail entry.
// Dumps carry it as either a JSON number or a string; both decode to the
// same decimal text.
type SourceID string

// UnmarshalJSON accepts a number, a string or null.
func (id *SourceID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("source id: %w", err)
		}
		*id = SourceID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("source id: %w", err)
		}
		*id = SourceID(n.String())
		return nil
	}
}

// TrimPadding strips the trailing '=' some trail ids carry.
func (id SourceID) TrimPadding() SourceID {
	return SourceID(strings.TrimRight(string(id), "="))
}

func (id SourceID) String() string { return string(id) }

// PostKind is the platform's post type.
type PostKind string

const (
	KindText   PostKind = "text"
	KindLink   PostKind = "link"
	KindPhoto  PostKind = "photo"
	KindAudio  PostKind = "audio"
	KindQuote  PostKind = "quote"
	KindChat   PostKind = "chat"
	KindVideo  PostKind = "video"
	KindAnswer PostKind = "answer"
)

// ValidPostKinds lists accepted kinds.
var ValidPostKinds = map[PostKind]bool{
	KindText:   true,
	KindLink:   true,
	KindPhoto:  true,
	KindAudio:  true,
	KindQuote:  true,
	KindChat:   true,
	KindVideo:  true,
	KindAnswer: true,
}

// MaxNameLength is the longest account name stored; longer names are
// truncated before lookup.
const MaxNameLength = 32

// TruncateName clips a name to MaxNameLength runes.
func TruncateName(name string) string {
	r := []rune(name)
	if len(r) <= MaxNameLength {
		return name
	}
	return string(r[:MaxNameLength])
}

// AccountName is a handle ever observed. AccountID stays 0 until a
// downstream resolver assigns it.
type AccountName struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AccountID int64  `json:"account_id,omitempty"`
}

// EdgeKind classifies identity evidence.
type EdgeKind string

const (
	EdgeRename EdgeKind = "rename"
	EdgeAuthor EdgeKind = "author"
	EdgeManual EdgeKind = "manual"
)

// EdgeContext records where an edge was observed.
type EdgeContext struct {
	PostID    int64  `json:"post_id,omitempty"`
	ContentID int64  `json:"content_id,omitempty"`
	Type      string `json:"type,omitempty"`
	Note      string `json:"note,omitempty"`
}

// IdentityEdge is one piece of evidence that two names are the same entity.
type IdentityEdge struct {
	ID           int64       `json:"id"`
	Kind         EdgeKind    `json:"kind"`
	SourceNameID int64       `json:"source_name_id"`
	DestNameID   int64       `json:"dest_name_id"`
	RunID        int64       `json:"run_id"`
	Context      EdgeContext `json:"context"`
}

// ContentBlock is an immutable body revision keyed by (SourceID, Version).
type ContentBlock struct {
	ID            int64    `json:"id"`
	SourceID      SourceID `json:"source_id"`
	Version       string   `json:"version"`
	Text          string   `json:"text"`
	AccountNameID int64    `json:"account_name_id,omitempty"`
}

// BodyPosition is the post_contents slot holding a post's own body.
const BodyPosition = -1

// PostContent places a content block in a post. Position BodyPosition is the
// body; 0..N is the reblog trail, oldest first.
type PostContent struct {
	PostID    int64  `json:"post_id"`
	ContentID int64  `json:"content_id"`
	Position  int    `json:"position"`
	IsLast    bool   `json:"is_last"`
	Version   string `json:"version,omitempty"`
}

// PostSource is the attribution a post links to.
type PostSource struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// PostMeta holds post-level provenance.
type PostMeta struct {
	Source                *PostSource `json:"source,omitempty"`
	AuthorNameID          int64       `json:"author,omitempty"`
	IsSubmission          bool        `json:"is_submission,omitempty"`
	InteractabilityReblog string      `json:"interactability_reblog,omitempty"`
}

// Post is the reconciled record of a post. Lineage name ids are 0 when
// unknown.
type Post struct {
	ID                int64     `json:"id"`
	SourceID          SourceID  `json:"source_id"`
	Title             string    `json:"title"`
	Kind              PostKind  `json:"kind"`
	TypeMeta          TypeMeta  `json:"-"`
	Meta              PostMeta  `json:"meta"`
	Date              time.Time `json:"date"`
	URL               string    `json:"url"`
	IsRoot            bool      `json:"is_root"`
	RootSourceID      SourceID  `json:"root_source_id,omitempty"`
	FromSourceID      SourceID  `json:"from_source_id,omitempty"`
	AccountNameID     int64     `json:"account_name_id"`
	FromAccountNameID int64     `json:"from_account_name_id,omitempty"`
	RootAccountNameID int64     `json:"root_account_name_id,omitempty"`
	History           History   `json:"history,omitempty"`
}

// ResourceKind is the media kind of a resource.
type ResourceKind string

const (
	ResourcePhoto ResourceKind = "photo"
)

// ResourceMeta is descriptive data kept alongside a resource.
type ResourceMeta struct {
	Caption string `json:"caption,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	FullURL string `json:"full_url,omitempty"`
}

// Resource is a media item referenced by posts, unique by URL key.
type Resource struct {
	ID       int64        `json:"id"`
	Kind     ResourceKind `json:"kind"`
	URL      string       `json:"url"`
	External bool         `json:"external"`
	Meta     ResourceMeta `json:"meta"`
}

// PostResource places a resource in a post.
type PostResource struct {
	PostID     int64  `json:"post_id"`
	ResourceID int64  `json:"resource_id"`
	Position   int    `json:"position"`
	URL        string `json:"url,omitempty"`
}

// PostTag places a tag in a post.
type PostTag struct {
	PostID   int64  `json:"post_id"`
	TagID    int64  `json:"tag_id"`
	Position int    `json:"position"`
	Name     string `json:"name,omitempty"`
}

// RunPhase is the lifecycle stage of an import run.
type RunPhase string

const (
	PhaseNeedImport     RunPhase = "need_import"
	PhaseImportFinished RunPhase = "import_finished"
	PhaseProcessed      RunPhase = "processed"
	PhaseFinalized      RunPhase = "finalized"
)

// Watermarks are the MAX(id) of each entity table at run close. Zero means
// the table was empty or the run never closed.
type Watermarks struct {
	PostID         int64 `json:"post_id"`
	ContentID      int64 `json:"content_id"`
	TagID          int64 `json:"tag_id"`
	ResourceID     int64 `json:"resource_id"`
	AccountNameID  int64 `json:"account_name_id"`
	AccountID      int64 `json:"account_id"`
	IdentityEdgeID int64 `json:"identity_edge_id"`
	LanguageID     int64 `json:"language_id"`
}

// ImportRun is one ingestion of one source snapshot.
type ImportRun struct {
	ID              int64      `json:"id"`
	SourceTimestamp time.Time  `json:"source_timestamp"`
	SourceName      string     `json:"source_name"`
	Phase           RunPhase   `json:"phase"`
	Watermarks      Watermarks `json:"watermarks"`
}

// BatchStatus is the outcome of one batch.
type BatchStatus string

const (
	BatchOK     BatchStatus = "ok"
	BatchFailed BatchStatus = "failed"
)

// BatchRecord is the ledger row for one batch of a run.
type BatchRecord struct {
	ID     int64       `json:"id"`
	RunID  int64       `json:"run_id"`
	Key    string      `json:"batch_key"`
	Token  string      `json:"token"`
	Status BatchStatus `json:"status"`
	Stats  string      `json:"stats,omitempty"`
	Error  string      `json:"error,omitempty"`
}
