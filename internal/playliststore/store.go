// Package playliststore persists named guild playlists so a queue can be
// saved with /playlist save and restored later with /playlist load.
//
// Two implementations are provided: [MemoryStore] for tests and single-process
// deployments, and [PostgresStore] backed by a pgx connection pool.
package playliststore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/voxbridge/pkg/playback"
)

// ErrNotFound is returned when no playlist with the requested name exists
// for the guild.
var ErrNotFound = errors.New("playliststore: playlist not found")

// ErrInvalidName is returned by Save for empty or over-long names.
var ErrInvalidName = errors.New("playliststore: invalid playlist name")

// MaxNameLength bounds playlist names in runes.
const MaxNameLength = 100

// Saved is a stored playlist.
type Saved struct {
	GuildID   string
	Name      string
	Tracks    []playback.Track
	CreatedBy string
	UpdatedAt time.Time
}

// Store persists playlists keyed by (guild id, name). Names are matched
// case-insensitively; Save replaces an existing playlist with the same name.
// All implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, p Saved) error
	Load(ctx context.Context, guildID, name string) (Saved, error)
	// List returns the guild's playlist names in ascending order.
	List(ctx context.Context, guildID string) ([]string, error)
	Delete(ctx context.Context, guildID, name string) error
	Ping(ctx context.Context) error
	Close()
}

// normalizeName trims name and lower-cases it for use as a key.
func normalizeName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" || len([]rune(n)) > MaxNameLength {
		return "", ErrInvalidName
	}
	return n, nil
}
