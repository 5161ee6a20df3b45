package playback

import (
	"context"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// Track is one queued song.
type Track struct {
	// ID identifies the track within its library.
	ID string

	// Title is the display name.
	Title string

	// Duration is the track length, zero when unknown.
	Duration time.Duration

	// Location is where the audio lives: a file path, an object key, or a URL,
	// interpreted by the [Opener].
	Location string

	// Format names the container: "dca", "ogg" or "pcm". Empty means the
	// opener guesses from Location.
	Format string

	// Requester is the user id that queued the track.
	Requester string
}

// Source yields a track's audio one frame at a time. Next returns io.EOF
// once the track is exhausted.
type Source interface {
	Next() (audio.AudioFrame, error)
	Close() error
}

// Opener resolves a track to a playable source. Open may block on I/O; the
// controller never calls it with its lock held.
type Opener interface {
	Open(ctx context.Context, t Track) (Source, error)
}

// OpenerFunc adapts a function to [Opener].
type OpenerFunc func(ctx context.Context, t Track) (Source, error)

// Open implements [Opener].
func (f OpenerFunc) Open(ctx context.Context, t Track) (Source, error) { return f(ctx, t) }
