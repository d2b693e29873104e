package ir

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// Marker records that an archived field had no value before.
type Marker string

// EmptyMarker is the archived value of a field that was null.
const EmptyMarker Marker = "empty"

// NoPriorBody is archived in Archive.Root when a body appears on a post
// that had none.
const NoPriorBody int64 = -1

// Archive holds the values a revisit replaced, keyed in History by the run
// that replaced them. Fields left at their zero value were not touched.
type Archive struct {
	Tags         []int64         `json:"tags,omitempty"`
	Root         *int64          `json:"root,omitempty"`
	Trail        []int64         `json:"trail,omitempty"`
	Title        string          `json:"title,omitempty"`
	Meta         json.RawMessage `json:"meta,omitempty"`
	Resources    []int64         `json:"resources,omitempty"`
	FromAccount  Marker          `json:"from_account,omitempty"`
	RootAccount  Marker          `json:"root_account,omitempty"`
	RootSourceID Marker          `json:"root_source_id,omitempty"`
	FromSourceID Marker          `json:"from_source_id,omitempty"`
}

// IsEmpty reports whether nothing was archived.
func (a Archive) IsEmpty() bool {
	return len(a.Tags) == 0 && a.Root == nil && len(a.Trail) == 0 &&
		a.Title == "" && len(a.Meta) == 0 && len(a.Resources) == 0 &&
		a.FromAccount == "" && a.RootAccount == "" &&
		a.RootSourceID == "" && a.FromSourceID == ""
}

// ArchiveMeta stores the replaced metadata m, or the empty marker when the
// post had none.
func (a *Archive) ArchiveMeta(m TypeMeta) error {
	encoded, err := EncodeTypeMeta(m)
	if err != nil {
		return err
	}
	if encoded == "" {
		a.Meta = json.RawMessage(`"` + string(EmptyMarker) + `"`)
		return nil
	}
	a.Meta = json.RawMessage(encoded)
	return nil
}

// ArchiveRoot stores the replaced body content id (or NoPriorBody).
func (a *Archive) ArchiveRoot(contentID int64) {
	a.Root = &contentID
}

// History maps run ids to what that run archived.
type History map[int64]Archive

// Has reports whether runID archived anything on this post.
func (h History) Has(runID int64) bool {
	_, ok := h[runID]
	return ok
}

// Runs returns the run ids in ascending order.
func (h History) Runs() []int64 {
	runs := make([]int64, 0, len(h))
	for id := range h {
		runs = append(runs, id)
	}
	slices.Sort(runs)
	return runs
}

// EncodeHistory returns the canonical JSON of h, "" when h is empty.
func EncodeHistory(h History) (string, error) {
	if len(h) == 0 {
		return "", nil
	}
	obj := make(map[string]Archive, len(h))
	for id, a := range h {
		obj[strconv.FormatInt(id, 10)] = a
	}
	b, err := Canonicalize(obj)
	if err != nil {
		return "", fmt.Errorf("encode history: %w", err)
	}
	return string(b), nil
}

// DecodeHistory parses a stored history column.
func DecodeHistory(raw string) (History, error) {
	if raw == "" {
		return History{}, nil
	}
	var obj map[string]Archive
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	h := make(History, len(obj))
	for k, a := range obj {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode history: run key %q: %w", k, err)
		}
		h[id] = a
	}
	return h, nil
}
