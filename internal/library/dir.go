package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/MrWong99/voxbridge/pkg/playback"
)

var _ Store = (*DirStore)(nil)

// DirStore serves tracks from a local directory tree. Opens are confined to
// the directory; locations escaping it are reported as not found.
type DirStore struct {
	root string
}

// NewDirStore returns a store rooted at dir. The directory must exist.
func NewDirStore(dir string) (*DirStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("library: dir store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library: dir store: %s is not a directory", dir)
	}
	return &DirStore{root: dir}, nil
}

// Name implements [Store].
func (d *DirStore) Name() string { return "dir:" + d.root }

// List implements [Store]. Hidden files and directories are skipped.
func (d *DirStore) List(ctx context.Context) ([]playback.Track, error) {
	var tracks []playback.Track
	err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p != d.root && strings.HasPrefix(e.Name(), ".") {
			if e.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		if t, ok := trackFor(filepath.ToSlash(rel), info.Size()); ok {
			tracks = append(tracks, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("library: scan %s: %w", d.root, err)
	}
	slices.SortFunc(tracks, func(a, b playback.Track) int { return strings.Compare(a.ID, b.ID) })
	return tracks, nil
}

// Open implements [Store].
func (d *DirStore) Open(_ context.Context, location string) (io.ReadCloser, error) {
	root, err := os.OpenRoot(d.root)
	if err != nil {
		return nil, fmt.Errorf("library: open root: %w", err)
	}
	defer root.Close()

	f, err := root.Open(filepath.FromSlash(location))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || !filepath.IsLocal(filepath.FromSlash(location)) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("library: open %s: %w", location, err)
	}
	return f, nil
}
