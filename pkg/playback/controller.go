package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/voice"
)

// Compile-time check that a voice session can be driven by the controller.
var _ Sink = (*voice.Session)(nil)

// Sink is what the controller drives: a voice session's outbound queue and
// active sub-state. The controller calls it with its lock held, so
// implementations must not block or call back into the controller.
type Sink interface {
	Push(f audio.AudioFrame)
	SetActive(s voice.ActiveState)
}

// CompletionEvent reports that a track stopped playing, either because its
// source ran out or because it was skipped.
type CompletionEvent struct {
	GuildID    string
	Track      Track
	WasSkipped bool
}

const defaultLead = 10

// Controller manages playlists and playback for any number of guilds.
//
// All mutations of one guild's playlist and active state happen under a
// single lock, and the matching sink calls are made before it is released,
// so the last state a sink was given is always the guild's [Controller.State].
// The lock is never held across source I/O. Misuse (playing an empty queue, skipping nothing) returns
// false and changes nothing.
//
// All exported methods are safe for concurrent use.
type Controller struct {
	opener Opener
	lead   int
	log    *slog.Logger

	mu           sync.Mutex
	guilds       map[string]*guild
	onCompletion func(CompletionEvent)
}

// guild is one guild's playback state. Guarded by Controller.mu.
type guild struct {
	id       string
	sink     Sink
	playlist Playlist
	state    voice.ActiveState
	feed     *feed
}

// Option configures a [Controller].
type Option func(*Controller)

// WithLead sets how many frames the feeder pushes ahead of real time when a
// track starts. The default is 10 (200 ms).
func WithLead(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.lead = n
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New creates a controller that opens tracks with opener.
func New(opener Opener, opts ...Option) *Controller {
	c := &Controller{
		opener: opener,
		lead:   defaultLead,
		log:    slog.Default(),
		guilds: make(map[string]*guild),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// guildLocked returns the state for id, creating it. c.mu must be held.
func (c *Controller) guildLocked(id string) *guild {
	g, ok := c.guilds[id]
	if !ok {
		g = &guild{id: id, playlist: NewPlaylist(), state: voice.ActiveStopped}
		c.guilds[id] = g
	}
	return g
}

// ─── Sinks ────────────────────────────────────────────────────────────────────

// Attach binds a guild to the sink that plays its audio, typically a freshly
// connected voice session. The playlist survives; a running feed is stopped.
func (c *Controller) Attach(guildID string, s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.guildLocked(guildID)
	if g.feed != nil {
		g.feed.stop()
		g.feed = nil
	}
	g.sink = s
	g.state = voice.ActiveStopped
}

// Detach stops playback for a guild and forgets its sink. The playlist is
// kept so a later Attach can resume it.
func (c *Controller) Detach(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	if !ok {
		return
	}
	if g.feed != nil {
		g.feed.stop()
		g.feed = nil
	}
	if g.sink != nil {
		g.sink.SetActive(voice.ActiveStopped)
		g.sink = nil
	}
	g.state = voice.ActiveStopped
}

// Forget drops all state for a guild.
func (c *Controller) Forget(guildID string) {
	c.Detach(guildID)
	c.mu.Lock()
	delete(c.guilds, guildID)
	c.mu.Unlock()
}

// OnCompletion registers the callback run after a track ends or is skipped,
// replacing any previous one. It runs on controller goroutines without the
// lock held.
func (c *Controller) OnCompletion(fn func(CompletionEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCompletion = fn
}

// ─── Queue ────────────────────────────────────────────────────────────────────

// Enqueue appends t to the guild's playlist and returns it.
func (c *Controller) Enqueue(guildID string, t Track) Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guildLocked(guildID).playlist.enqueue(t)
	return t
}

// HasPlayable reports whether the guild has a current or next track.
func (c *Controller) HasPlayable(guildID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	return ok && g.playlist.HasPlayable()
}

// Move repositions a queued track. The cursor keeps pointing at the same
// track.
func (c *Controller) Move(guildID string, from, to int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	return ok && g.playlist.move(from, to)
}

// ─── Transport controls ───────────────────────────────────────────────────────

// Play starts the current track, or the first one when nothing is selected.
// A paused guild resumes. It returns false when there is no sink or nothing
// to play, and true without side effects when already playing.
func (c *Controller) Play(guildID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	if !ok || g.sink == nil {
		return false
	}
	switch g.state {
	case voice.ActivePlaying:
		return true
	case voice.ActivePaused:
		if g.feed != nil {
			g.state = voice.ActivePlaying
			g.feed.setPaused(false)
			g.sink.SetActive(voice.ActivePlaying)
			return true
		}
	}
	if !g.playlist.start() {
		return false
	}
	c.startLocked(g)
	return true
}

// Skip ends the current track, discards its buffered audio and starts the
// next one. Loop flags are honoured: loop-one replays the same track and
// loop-all wraps to the first. Past the end of the queue the guild is left
// Stopped. It returns false when no track is selected.
func (c *Controller) Skip(guildID string) bool {
	return c.next(guildID, true, nil)
}

// SendNext advances to the next track and starts it, like a track that ran
// out on its own. It returns false when no track was selected.
func (c *Controller) SendNext(guildID string) bool {
	return c.next(guildID, false, nil)
}

// next moves the guild past its current track. A non-nil only restricts
// the move to the case where only is still the guild's feed.
func (c *Controller) next(guildID string, skipped bool, only *feed) bool {
	c.mu.Lock()
	g, ok := c.guilds[guildID]
	if !ok || g.sink == nil || (only != nil && g.feed != only) {
		c.mu.Unlock()
		return false
	}
	finished, had := g.playlist.CurrentTrack()
	if !had {
		c.mu.Unlock()
		return false
	}
	if g.feed != nil {
		g.feed.stop()
		g.feed = nil
	}
	if skipped {
		g.sink.Push(audio.AudioFrame{Type: audio.FrameSkip})
	}
	if g.playlist.advance() {
		c.startLocked(g)
	} else {
		g.state = voice.ActiveStopped
		g.sink.SetActive(voice.ActiveStopped)
	}
	cb := c.onCompletion
	c.mu.Unlock()

	if cb != nil {
		cb(CompletionEvent{GuildID: guildID, Track: finished, WasSkipped: skipped})
	}
	return true
}

// Stop halts playback and discards buffered audio without touching the
// playlist. A later Play restarts the current track from the beginning.
func (c *Controller) Stop(guildID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	if !ok || g.sink == nil {
		return
	}
	if g.feed != nil {
		g.feed.stop()
		g.feed = nil
	}
	g.state = voice.ActiveStopped
	g.sink.SetActive(voice.ActiveStopped)
	g.sink.Push(audio.AudioFrame{Type: audio.FrameSkip})
}

// PauseToggle pauses a playing guild or resumes a paused one without moving
// the cursor. It returns the new paused state.
func (c *Controller) PauseToggle(guildID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	if !ok || g.sink == nil || g.feed == nil {
		return false
	}
	var next voice.ActiveState
	switch g.state {
	case voice.ActivePlaying:
		next = voice.ActivePaused
	case voice.ActivePaused:
		next = voice.ActivePlaying
	default:
		return false
	}
	g.state = next
	g.feed.setPaused(next == voice.ActivePaused)
	g.sink.SetActive(next)
	return next == voice.ActivePaused
}

// IsPlaying reports whether the guild is actively playing.
func (c *Controller) IsPlaying(guildID string) bool {
	return c.State(guildID) == voice.ActivePlaying
}

// State returns the guild's active sub-state as last set by the controller.
func (c *Controller) State(guildID string) voice.ActiveState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.guilds[guildID]; ok {
		return g.state
	}
	return voice.ActiveStopped
}

// ─── Accessors ────────────────────────────────────────────────────────────────

// Current returns the track under the cursor.
func (c *Controller) Current(guildID string) (Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	if !ok {
		return Track{}, false
	}
	return g.playlist.CurrentTrack()
}

// SetCurrent replaces the track under the cursor. With nothing selected, t
// becomes the first track and is selected. Playback is not restarted.
func (c *Controller) SetCurrent(guildID string, t Track) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guildLocked(guildID).playlist.setCurrent(t)
}

// Playlist returns a copy of the guild's playlist.
func (c *Controller) Playlist(guildID string) Playlist {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	if !ok {
		return NewPlaylist()
	}
	return g.playlist.Clone()
}

// SetPlaylist replaces the guild's playlist. A cursor outside the track
// list is reset to [NoTrack]. Playback is not restarted.
func (c *Controller) SetPlaylist(guildID string, p Playlist) {
	p = p.Clone()
	p.normalize()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guildLocked(guildID).playlist = p
}

// LoopAll reports the loop-all flag.
func (c *Controller) LoopAll(guildID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	return ok && g.playlist.LoopAll
}

// SetLoopAll sets the loop-all flag.
func (c *Controller) SetLoopAll(guildID string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guildLocked(guildID).playlist.LoopAll = enabled
}

// LoopOne reports the loop-one flag.
func (c *Controller) LoopOne(guildID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.guilds[guildID]
	return ok && g.playlist.LoopOne
}

// SetLoopOne sets the loop-one flag.
func (c *Controller) SetLoopOne(guildID string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.guildLocked(guildID).playlist.LoopOne = enabled
}

// ─── Feeding ──────────────────────────────────────────────────────────────────

// startLocked installs a feed for the current track, marks the sink Playing
// and launches the feeder. c.mu must be held and the cursor must be valid.
func (c *Controller) startLocked(g *guild) {
	t, _ := g.playlist.CurrentTrack()
	ctx, cancel := context.WithCancel(context.Background())
	f := newFeed(g.sink, cancel)
	g.feed = f
	g.state = voice.ActivePlaying
	g.sink.SetActive(voice.ActivePlaying)
	go c.runFeed(ctx, g.id, f, t)
}

// runFeed streams t into the feed's sink at real-time pace, after an
// initial lead. When the source runs out the guild advances.
func (c *Controller) runFeed(ctx context.Context, guildID string, f *feed, t Track) {
	log := c.log.With("guild_id", guildID, "track", t.Title)
	src, err := c.opener.Open(ctx, t)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("playback: open track failed", "error", err)
		c.finished(guildID, f)
		return
	}
	defer func() { _ = src.Close() }()
	log.Info("playback: track started")

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()
	lead := c.lead

	for {
		if lead > 0 {
			lead--
		} else {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if f.isPaused() {
				continue
			}
		}

		frame, err := src.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("playback: track read failed", "error", err)
			}
			c.finished(guildID, f)
			return
		}
		if !f.push(frame) {
			return
		}
	}
}

// finished advances the guild after f's track ran out, unless f has been
// replaced in the meantime.
func (c *Controller) finished(guildID string, f *feed) {
	c.next(guildID, false, f)
}
