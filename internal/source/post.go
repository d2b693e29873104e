package source

import (
	"encoding/json"

	"github.com/roach88/trailkeep/internal/ir"
)

// Post is one post as the platform API dumps it. Only the fields the
// importer reads are decoded; kind-specific fields are empty for other
// kinds.
type Post struct {
	ID                    ir.SourceID `json:"id"`
	Type                  string      `json:"type"`
	Blog                  BlogRef     `json:"blog"`
	PostURL               string      `json:"post_url"`
	Timestamp             int64       `json:"timestamp"`
	Title                 string      `json:"title"`
	Body                  string      `json:"body"`
	Tags                  []string    `json:"tags"`
	SourceTitle           string      `json:"source_title"`
	SourceURL             string      `json:"source_url"`
	RebloggedRootID       ir.SourceID `json:"reblogged_root_id"`
	RebloggedRootName     string      `json:"reblogged_root_name"`
	RebloggedFromID       ir.SourceID `json:"reblogged_from_id"`
	RebloggedFromName     string      `json:"reblogged_from_name"`
	PostAuthor            string      `json:"post_author"`
	IsSubmission          bool        `json:"is_submission"`
	InteractabilityReblog string      `json:"interactability_reblog"`
	Trail                 []TrailItem `json:"trail"`

	// photo
	Photos         []Photo `json:"photos"`
	PhotosetLayout string  `json:"photoset_layout"`

	// link
	LinkAuthor string `json:"link_author"`
	Publisher  string `json:"publisher"`
	URL        string `json:"url"`
	Excerpt    string `json:"excerpt"`

	// audio
	ProviderURL    string `json:"provider_url"`
	Artist         string `json:"artist"`
	Album          string `json:"album"`
	AudioType      string `json:"audio_type"`
	TrackName      string `json:"track_name"`
	AlbumArt       string `json:"album_art"`
	AudioURL       string `json:"audio_url"`
	AudioSourceURL string `json:"audio_source_url"`
	Embed          string `json:"embed"`

	// quote
	Text   string `json:"text"`
	Source string `json:"source"`

	// chat
	Dialogue []DialogueLine `json:"dialogue"`

	// video
	VideoType    string          `json:"video_type"`
	Player       Players         `json:"player"`
	Video        json.RawMessage `json:"video"`
	VideoURL     string          `json:"video_url"`
	PermalinkURL string          `json:"permalink_url"`

	// answer
	AskingName string `json:"asking_name"`
	AskingURL  string `json:"asking_url"`
	Question   string `json:"question"`
}

// BlogRef names the account a post or trail entry belongs to.
type BlogRef struct {
	Name string `json:"name"`
}

// TrailItem is one layer of a reblog trail.
type TrailItem struct {
	Blog       BlogRef `json:"blog"`
	Post       PostRef `json:"post"`
	ContentRaw string  `json:"content_raw"`
}

// PostRef identifies the post a trail layer was taken from.
type PostRef struct {
	ID ir.SourceID `json:"id"`
}

// Photo is one image of a photo post.
type Photo struct {
	Caption      string      `json:"caption"`
	AltSizes     []PhotoSize `json:"alt_sizes"`
	OriginalSize *PhotoSize  `json:"original_size"`
}

// PhotoSize is one rendition of a photo.
type PhotoSize struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DialogueLine is one line of a chat post.
type DialogueLine struct {
	Label  string `json:"label"`
	Phrase string `json:"phrase"`
}

// Players is a video post's player list. Audio posts put an HTML string
// in the same field; it decodes to an empty list.
type Players []ir.VideoPlayer

// UnmarshalJSON accepts an array of players or anything else as empty.
func (p *Players) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || data[0] != '[' {
		*p = nil
		return nil
	}
	var players []ir.VideoPlayer
	if err := json.Unmarshal(data, &players); err != nil {
		return err
	}
	*p = players
	return nil
}
