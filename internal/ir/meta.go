package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// TypeMeta is the kind-specific metadata of a post. Text, quote and chat
// posts carry none (nil).
type TypeMeta interface {
	Kind() PostKind
	// mapStrings returns a copy with f applied to every string value.
	mapStrings(f func(string) string) (TypeMeta, error)
	// withoutPlayers returns a copy without embed and player values.
	withoutPlayers() (TypeMeta, error)
}

// LinkMeta describes a link post.
type LinkMeta struct {
	Author    string `json:"author,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	URL       string `json:"url,omitempty"`
}

// PhotoMeta describes a photo post.
type PhotoMeta struct {
	Layout string `json:"layout,omitempty"`
}

// AudioMeta describes an audio post.
type AudioMeta struct {
	Provider  string `json:"provider,omitempty"`
	Artist    string `json:"artist,omitempty"`
	Album     string `json:"album,omitempty"`
	Type      string `json:"type,omitempty"`
	Track     string `json:"track,omitempty"`
	AlbumArt  string `json:"album_art,omitempty"`
	URL       string `json:"url,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Embed     string `json:"embed,omitempty"`
}

// VideoPlayer is one embeddable player size.
type VideoPlayer struct {
	Width     int    `json:"width"`
	EmbedCode string `json:"embed_code"`
}

// VideoMeta describes a video post. Details is the provider-specific
// object passed through as JSON.
type VideoMeta struct {
	Type    string          `json:"type,omitempty"`
	Player  []VideoPlayer   `json:"player,omitempty"`
	Embed   string          `json:"embed,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
	URL     string          `json:"url,omitempty"`
}

// AnswerMeta describes who asked an answer post's question.
type AnswerMeta struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

func (LinkMeta) Kind() PostKind   { return KindLink }
func (PhotoMeta) Kind() PostKind  { return KindPhoto }
func (AudioMeta) Kind() PostKind  { return KindAudio }
func (VideoMeta) Kind() PostKind  { return KindVideo }
func (AnswerMeta) Kind() PostKind { return KindAnswer }

func (m LinkMeta) mapStrings(f func(string) string) (TypeMeta, error) {
	return LinkMeta{Author: f(m.Author), Publisher: f(m.Publisher), URL: f(m.URL)}, nil
}

func (m PhotoMeta) mapStrings(f func(string) string) (TypeMeta, error) {
	return PhotoMeta{Layout: f(m.Layout)}, nil
}

func (m AudioMeta) mapStrings(f func(string) string) (TypeMeta, error) {
	return AudioMeta{
		Provider:  f(m.Provider),
		Artist:    f(m.Artist),
		Album:     f(m.Album),
		Type:      f(m.Type),
		Track:     f(m.Track),
		AlbumArt:  f(m.AlbumArt),
		URL:       f(m.URL),
		SourceURL: f(m.SourceURL),
		Embed:     f(m.Embed),
	}, nil
}

func (m VideoMeta) mapStrings(f func(string) string) (TypeMeta, error) {
	out := VideoMeta{Type: f(m.Type), Embed: f(m.Embed), URL: f(m.URL)}
	for _, p := range m.Player {
		out.Player = append(out.Player, VideoPlayer{Width: p.Width, EmbedCode: f(p.EmbedCode)})
	}
	details, err := rewriteTree(m.Details, func(v any) any { return mapTreeStrings(v, f) })
	if err != nil {
		return nil, fmt.Errorf("video details: %w", err)
	}
	out.Details = details
	return out, nil
}

func (m AnswerMeta) mapStrings(f func(string) string) (TypeMeta, error) {
	return AnswerMeta{Name: f(m.Name), URL: f(m.URL)}, nil
}

func (m LinkMeta) withoutPlayers() (TypeMeta, error)  { return m, nil }
func (m PhotoMeta) withoutPlayers() (TypeMeta, error) { return m, nil }

func (m AudioMeta) withoutPlayers() (TypeMeta, error) {
	m.Embed = ""
	return m, nil
}

func (m VideoMeta) withoutPlayers() (TypeMeta, error) {
	details, err := rewriteTree(m.Details, dropPlayerKeys)
	if err != nil {
		return nil, fmt.Errorf("video details: %w", err)
	}
	return VideoMeta{Type: m.Type, Details: details, URL: m.URL}, nil
}

func (m AnswerMeta) withoutPlayers() (TypeMeta, error) { return m, nil }

// NewTypeMeta returns the empty metadata value for kind, or nil for kinds
// without metadata.
func NewTypeMeta(kind PostKind) TypeMeta {
	switch kind {
	case KindLink:
		return LinkMeta{}
	case KindPhoto:
		return PhotoMeta{}
	case KindAudio:
		return AudioMeta{}
	case KindVideo:
		return VideoMeta{}
	case KindAnswer:
		return AnswerMeta{}
	default:
		return nil
	}
}

// DecodeTypeMeta decodes a stored type_meta column. An empty column
// decodes to nil.
func DecodeTypeMeta(kind PostKind, raw string) (TypeMeta, error) {
	if raw == "" {
		return nil, nil
	}
	var (
		m   TypeMeta
		err error
	)
	switch kind {
	case KindLink:
		var v LinkMeta
		err = json.Unmarshal([]byte(raw), &v)
		m = v
	case KindPhoto:
		var v PhotoMeta
		err = json.Unmarshal([]byte(raw), &v)
		m = v
	case KindAudio:
		var v AudioMeta
		err = json.Unmarshal([]byte(raw), &v)
		m = v
	case KindVideo:
		var v VideoMeta
		err = json.Unmarshal([]byte(raw), &v)
		m = v
	case KindAnswer:
		var v AnswerMeta
		err = json.Unmarshal([]byte(raw), &v)
		m = v
	default:
		return nil, fmt.Errorf("kind %q carries no type metadata", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", kind, err)
	}
	return m, nil
}

// EncodeTypeMeta returns the canonical JSON for m. Nil and all-empty
// metadata encode to "" (stored as NULL).
func EncodeTypeMeta(m TypeMeta) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := Canonicalize(m)
	if err != nil {
		return "", fmt.Errorf("encode %s metadata: %w", m.Kind(), err)
	}
	if bytes.Equal(b, []byte("{}")) {
		return "", nil
	}
	return string(b), nil
}

// SanitizeTypeMeta applies NormalizeMedia to every string in m.
func SanitizeTypeMeta(m TypeMeta) (TypeMeta, error) {
	if m == nil {
		return nil, nil
	}
	return m.mapStrings(NormalizeMedia)
}

var anyScheme = regexp.MustCompile(`https?://`)

// ComparableTypeMeta is the form two metadata values are diffed in:
// http and https are equivalent and embed/player values are ignored.
func ComparableTypeMeta(m TypeMeta) (string, error) {
	if m == nil {
		return "", nil
	}
	stripped, err := m.withoutPlayers()
	if err != nil {
		return "", err
	}
	folded, err := stripped.mapStrings(func(s string) string {
		return anyScheme.ReplaceAllString(s, "https://")
	})
	if err != nil {
		return "", err
	}
	return EncodeTypeMeta(folded)
}

// TypeMetaEqual reports whether a and b are equal in comparable form.
func TypeMetaEqual(a, b TypeMeta) (bool, error) {
	ca, err := ComparableTypeMeta(a)
	if err != nil {
		return false, err
	}
	cb, err := ComparableTypeMeta(b)
	if err != nil {
		return false, err
	}
	return ca == cb, nil
}

// rewriteTree decodes raw, applies f and re-encodes canonically. Empty raw
// passes through.
func rewriteTree(raw json.RawMessage, f func(any) any) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	tree, err := decodeTree(raw)
	if err != nil {
		return nil, err
	}
	out, err := MarshalCanonical(f(tree))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func mapTreeStrings(v any, f func(string) string) any {
	switch val := v.(type) {
	case string:
		return f(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = mapTreeStrings(elem, f)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = mapTreeStrings(elem, f)
		}
		return out
	default:
		return v
	}
}

func dropPlayerKeys(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = dropPlayerKeys(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if k == "embed" || k == "player" {
				continue
			}
			out[k] = dropPlayerKeys(elem)
		}
		return out
	default:
		return v
	}
}
