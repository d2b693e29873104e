package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Dir reads .json dump files below a directory in lexical path order.
type Dir struct {
	root  string
	ts    time.Time
	files []string
	next  int
}

// OpenDir lists the dumps below root. The run timestamp is the newest
// modification time among the selected files.
func OpenDir(root string, opts Options) (*Dir, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open dir %s: %w", root, err)
	}
	sort.Strings(paths)

	d := &Dir{root: root}
	for _, i := range selectEntries(paths, opts) {
		info, err := os.Stat(paths[i])
		if err != nil {
			return nil, fmt.Errorf("open dir: %w", err)
		}
		if mt := info.ModTime().UTC(); mt.After(d.ts) {
			d.ts = mt
		}
		d.files = append(d.files, paths[i])
	}
	return d, nil
}

func (d *Dir) Name() string         { return d.root }
func (d *Dir) Timestamp() time.Time { return d.ts }
func (d *Dir) Close() error         { return nil }

// Len is the number of files that will be yielded.
func (d *Dir) Len() int { return len(d.files) }

func (d *Dir) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if d.next >= len(d.files) {
		return Batch{}, io.EOF
	}
	path := d.files[d.next]
	d.next++

	key, err := filepath.Rel(d.root, path)
	if err != nil {
		key = path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Batch{}, &DecodeError{Key: key, Err: err}
	}
	return Decode(filepath.ToSlash(key), data)
}
