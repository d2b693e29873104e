package source

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Options tune which entries a reader yields.
type Options struct {
	// SkipUntil skips entries until the first whose name contains it.
	SkipUntil string
}

// Zip reads .json dump entries from a zip archive in archive order.
type Zip struct {
	path    string
	ts      time.Time
	rc      *zip.ReadCloser
	entries []*zip.File
	next    int
}

// OpenZip opens a dump archive. The run timestamp is the archive's
// modification time, so reopening the same file resumes the same run.
func OpenZip(path string, opts Options) (*Zip, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip %s: %w", path, err)
	}

	names := make([]string, len(rc.File))
	for i, f := range rc.File {
		names[i] = f.Name
	}
	var entries []*zip.File
	for _, i := range selectEntries(names, opts) {
		if rc.File[i].FileInfo().IsDir() {
			continue
		}
		entries = append(entries, rc.File[i])
	}

	return &Zip{path: path, ts: info.ModTime().UTC(), rc: rc, entries: entries}, nil
}

func (z *Zip) Name() string         { return z.path }
func (z *Zip) Timestamp() time.Time { return z.ts }
func (z *Zip) Close() error         { return z.rc.Close() }

// Len is the number of entries that will be yielded.
func (z *Zip) Len() int { return len(z.entries) }

func (z *Zip) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if z.next >= len(z.entries) {
		return Batch{}, io.EOF
	}
	f := z.entries[z.next]
	z.next++

	r, err := f.Open()
	if err != nil {
		return Batch{}, &DecodeError{Key: f.Name, Err: err}
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return Batch{}, &DecodeError{Key: f.Name, Err: err}
	}
	return Decode(f.Name, data)
}

// selectEntries returns the indexes of dump entries to read, honoring
// SkipUntil.
func selectEntries(names []string, opts Options) []int {
	started := opts.SkipUntil == ""
	var out []int
	for i, name := range names {
		if !started && strings.Contains(name, opts.SkipUntil) {
			started = true
		}
		if started && strings.Contains(name, ".json") {
			out = append(out, i)
		}
	}
	return out
}
