// Package source reads archived post dumps and yields them as per-account
// batches.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Batch is one dump file: the posts of one account.
type Batch struct {
	Key     string
	Account string
	Posts   []Post
}

// Source yields batches in a deterministic order. Next returns io.EOF
// after the last batch. A *DecodeError from Next concerns one entry only;
// callers may keep reading.
type Source interface {
	Name() string
	Timestamp() time.Time
	Next(ctx context.Context) (Batch, error)
	Close() error
}

// ErrNoPosts is returned for a dump without a posts list.
var ErrNoPosts = errors.New("dump has no posts")

// DecodeError reports an entry that could not be decoded.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is a per-entry decode failure.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

type dump struct {
	Blog  BlogRef `json:"blog"`
	Posts *[]Post `json:"posts"`
}

// nulEscape is the escaped NUL some audio metadata carries; it is dropped
// before decoding.
var nulEscape = []byte(`\u0000`)

// Decode parses one dump file.
func Decode(key string, data []byte) (Batch, error) {
	data = bytes.ReplaceAll(data, nulEscape, nil)

	var d dump
	if err := json.Unmarshal(data, &d); err != nil {
		return Batch{}, &DecodeError{Key: key, Err: err}
	}
	if d.Posts == nil {
		return Batch{}, &DecodeError{Key: key, Err: ErrNoPosts}
	}
	return Batch{Key: key, Account: d.Blog.Name, Posts: *d.Posts}, nil
}

// Slice is an in-memory Source.
type Slice struct {
	name    string
	ts      time.Time
	batches []Batch
	next    int
}

// FromBatches returns a Source yielding batches in order.
func FromBatches(name string, ts time.Time, batches ...Batch) *Slice {
	return &Slice{name: name, ts: ts, batches: batches}
}

func (s *Slice) Name() string         { return s.name }
func (s *Slice) Timestamp() time.Time { return s.ts }
func (s *Slice) Close() error         { return nil }

func (s *Slice) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if s.next >= len(s.batches) {
		return Batch{}, io.EOF
	}
	b := s.batches[s.next]
	s.next++
	return b, nil
}

var (
	_ Source = (*Slice)(nil)
	_ Source = (*Zip)(nil)
	_ Source = (*Dir)(nil)
)
