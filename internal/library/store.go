// Package library indexes playable tracks and resolves search queries to
// them. Tracks come from one or more [Store] backends (a local directory and
// an S3-compatible bucket); opening a track tries the backends in order and
// falls through to the next one when a backend fails or lacks the object.
package library

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/playback"
)

// ErrNotFound is returned when a track or object does not exist.
var ErrNotFound = errors.New("library: track not found")

// Store is a source of audio files. Locations are store-relative slash
// paths, so mirrored stores resolve the same location to the same audio.
type Store interface {
	// Name labels the store in logs and breaker state.
	Name() string

	// List returns every playable track in the store.
	List(ctx context.Context) ([]playback.Track, error)

	// Open returns the raw bytes at location, or an error wrapping
	// [ErrNotFound].
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// trackFor builds the index entry for a file at the store-relative location.
// It returns false for files that are not audio.
func trackFor(location string, size int64) (playback.Track, bool) {
	format := playback.FormatOf(location)
	if format == "" {
		return playback.Track{}, false
	}
	t := playback.Track{
		ID:       location,
		Title:    titleOf(location),
		Location: location,
		Format:   format,
	}
	if format == playback.FormatPCM && size > 0 {
		frames := (size + audio.PCMFrameBytes - 1) / audio.PCMFrameBytes
		t.Duration = time.Duration(frames) * audio.FrameDuration
	}
	return t, true
}

// titleOf turns "albums/Some_Song-name.dca" into "Some Song name".
func titleOf(location string) string {
	base := path.Base(location)
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}
