// Package testutil holds fixtures shared by package tests: post and batch
// builders, a snapshot clock and a fixed batch token generator.
package testutil

import (
	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/source"
)

// DefaultTimestamp is the publish time of built posts unless overridden.
const DefaultTimestamp int64 = 1700000000

// PostBuilder assembles a source.Post as a dump would carry it.
type PostBuilder struct {
	p source.Post
}

// Post starts a text post with id on account's blog.
func Post(id, account string) *PostBuilder {
	return &PostBuilder{p: source.Post{
		ID:        ir.SourceID(id),
		Type:      string(ir.KindText),
		Blog:      source.BlogRef{Name: account},
		PostURL:   "https://" + account + ".tumblr.com/post/" + id,
		Timestamp: DefaultTimestamp,
	}}
}

func (b *PostBuilder) Kind(kind ir.PostKind) *PostBuilder {
	b.p.Type = string(kind)
	return b
}

func (b *PostBuilder) Title(title string) *PostBuilder {
	b.p.Title = title
	return b
}

func (b *PostBuilder) Tags(tags ...string) *PostBuilder {
	b.p.Tags = tags
	return b
}

func (b *PostBuilder) Timestamp(ts int64) *PostBuilder {
	b.p.Timestamp = ts
	return b
}

// Trail sets the reblog trail, oldest layer first.
func (b *PostBuilder) Trail(items ...source.TrailItem) *PostBuilder {
	b.p.Trail = items
	return b
}

// RebloggedFrom marks the post as a reblog of fromID on fromName's blog
// with the chain rooted at rootID on rootName's blog.
func (b *PostBuilder) RebloggedFrom(fromName, fromID, rootName, rootID string) *PostBuilder {
	b.p.RebloggedFromName = fromName
	b.p.RebloggedFromID = ir.SourceID(fromID)
	b.p.RebloggedRootName = rootName
	b.p.RebloggedRootID = ir.SourceID(rootID)
	return b
}

func (b *PostBuilder) Author(name string) *PostBuilder {
	b.p.PostAuthor = name
	return b
}

func (b *PostBuilder) Submission() *PostBuilder {
	b.p.IsSubmission = true
	return b
}

// Photo appends a photo with a single rendition and makes the post a
// photo post.
func (b *PostBuilder) Photo(url string, width, height int) *PostBuilder {
	b.p.Type = string(ir.KindPhoto)
	b.p.Photos = append(b.p.Photos, source.Photo{
		AltSizes: []source.PhotoSize{{URL: url, Width: width, Height: height}},
	})
	return b
}

// Link makes the post a link post with excerpt as its body.
func (b *PostBuilder) Link(url, excerpt string) *PostBuilder {
	b.p.Type = string(ir.KindLink)
	b.p.URL = url
	b.p.Excerpt = excerpt
	return b
}

// Quote makes the post a quote post.
func (b *PostBuilder) Quote(text, src string) *PostBuilder {
	b.p.Type = string(ir.KindQuote)
	b.p.Text = text
	b.p.Source = src
	return b
}

func (b *PostBuilder) Build() source.Post {
	return b.p
}

// Layer is one trail entry by account, taken from post id.
func Layer(account, id, content string) source.TrailItem {
	return source.TrailItem{
		Blog:       source.BlogRef{Name: account},
		Post:       source.PostRef{ID: ir.SourceID(id)},
		ContentRaw: content,
	}
}

// Batch wraps posts as one dump of account.
func Batch(key, account string, posts ...source.Post) source.Batch {
	return source.Batch{Key: key, Account: account, Posts: posts}
}
