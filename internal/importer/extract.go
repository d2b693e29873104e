package importer

import (
	"fmt"
	"strings"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/source"
)

// maxTitleLength is the longest title kept on a post; longer titles are
// folded into the body.
const maxTitleLength = 132

// Skip is a field that could not be extracted from a post. Skips are
// logged and counted, never fatal.
type Skip struct {
	Field  string
	Reason string
}

func (s Skip) String() string { return s.Field + ": " + s.Reason }

// extraction is the kind-specific part of an observation.
type extraction struct {
	meta  ir.TypeMeta
	title string
	body  string
	skips []Skip
}

// extractKind maps a post's kind-specific fields to metadata, title and
// body. Unknown kinds extract nothing and are reported as a skip.
func extractKind(p *source.Post) extraction {
	ex := extraction{title: p.Title}

	switch ir.PostKind(p.Type) {
	case ir.KindText:
	case ir.KindLink:
		ex.meta = ir.LinkMeta{Author: p.LinkAuthor, Publisher: p.Publisher, URL: p.URL}
		ex.body = p.Excerpt
	case ir.KindPhoto:
		ex.meta = ir.PhotoMeta{Layout: p.PhotosetLayout}
	case ir.KindAudio:
		ex.meta = ir.AudioMeta{
			Provider:  p.ProviderURL,
			Artist:    p.Artist,
			Album:     p.Album,
			Type:      p.AudioType,
			Track:     p.TrackName,
			AlbumArt:  p.AlbumArt,
			URL:       p.AudioURL,
			SourceURL: p.AudioSourceURL,
			Embed:     p.Embed,
		}
		if t := joinNonEmpty(" - ", p.Artist, p.TrackName, p.Album); t != "" {
			ex.title = t
		}
	case ir.KindQuote:
		ex.body = `"` + p.Text + `"` + "\n\n" + p.Source
	case ir.KindChat:
		var b strings.Builder
		for _, line := range p.Dialogue {
			b.WriteString(line.Label + " " + line.Phrase + "\n")
		}
		ex.body = b.String()
	case ir.KindVideo:
		video := ir.VideoMeta{
			Type:    p.VideoType,
			Player:  []ir.VideoPlayer(p.Player),
			Details: p.Video,
			URL:     p.VideoURL,
		}
		if video.URL == "" {
			video.URL = p.PermalinkURL
		}
		if widest, ok := widestPlayer(p.Player); ok {
			video.Embed = widest.EmbedCode
		} else {
			ex.skips = append(ex.skips, Skip{Field: "embed", Reason: "video has no players"})
		}
		ex.meta = video
	case ir.KindAnswer:
		ex.meta = ir.AnswerMeta{Name: p.AskingName, URL: p.AskingURL}
		ex.body = p.Question
	default:
		ex.skips = append(ex.skips, Skip{Field: "type", Reason: fmt.Sprintf("unknown post type %q", p.Type)})
	}

	ex.title, ex.body = foldTitle(ex.title, ex.body)
	return ex
}

// foldTitle moves an over-long title into the body and truncates it.
func foldTitle(title, body string) (string, string) {
	r := []rune(title)
	if len(r) <= maxTitleLength {
		return title, body
	}
	return string(r[:maxTitleLength]) + "...", title + "\n" + body
}

func widestPlayer(players []ir.VideoPlayer) (ir.VideoPlayer, bool) {
	if len(players) == 0 {
		return ir.VideoPlayer{}, false
	}
	widest := players[0]
	for _, p := range players[1:] {
		if p.Width > widest.Width {
			widest = p
		}
	}
	return widest, true
}

// photoURL picks the widest rendition among the alternate sizes and the
// original.
func photoURL(ph source.Photo) (source.PhotoSize, bool) {
	sizes := ph.AltSizes
	if ph.OriginalSize != nil {
		sizes = append(append([]source.PhotoSize(nil), sizes...), *ph.OriginalSize)
	}
	var (
		best  source.PhotoSize
		found bool
	)
	for _, s := range sizes {
		if s.URL == "" {
			continue
		}
		if !found || s.Width > best.Width {
			best, found = s, true
		}
	}
	return best, found
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// isRoot reports whether a post is original to account: no reblog root
// and every trail layer (if any) is account's own. account is the stored,
// truncated name, so layer names are truncated before comparing.
func isRoot(p *source.Post, account string) bool {
	if p.RebloggedRootName != "" {
		return false
	}
	for _, item := range p.Trail {
		if ir.TruncateName(item.Blog.Name) != account {
			return false
		}
	}
	return true
}

// rootAccountName is the best guess at who made the original post.
func rootAccountName(p *source.Post, account string) string {
	if p.RebloggedRootName != "" {
		return p.RebloggedRootName
	}
	if len(p.Trail) > 0 && p.Trail[0].Blog.Name != "" {
		return p.Trail[0].Blog.Name
	}
	return account
}
