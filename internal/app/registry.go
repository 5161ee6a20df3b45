package app

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	// ErrAlreadyConnected is returned when a guild already has a voice session.
	ErrAlreadyConnected = errors.New("app: guild already has a voice session")

	// ErrNotConnected is returned when a guild has no voice session.
	ErrNotConnected = errors.New("app: guild has no voice session")
)

// Entry describes one live voice session.
type Entry struct {
	// GuildID is the guild the session belongs to.
	GuildID string

	// ChannelID is the voice channel the bot joined.
	ChannelID string

	// StartedAt is when the handshake completed.
	StartedAt time.Time

	// StartedBy is the Discord user ID that asked the bot to join.
	StartedBy string

	// Session is the connected voice session.
	Session Session
}

// Registry maps guild IDs to their live voice session. There is at most one
// entry per guild. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Insert adds e. It returns [ErrAlreadyConnected] if the guild already has
// an entry.
func (r *Registry) Insert(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.GuildID]; ok {
		return ErrAlreadyConnected
	}
	r.entries[e.GuildID] = e
	return nil
}

// Get returns the entry for guildID.
func (r *Registry) Get(guildID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[guildID]
	return e, ok
}

// Remove deletes the entry for guildID if it still refers to sess. A nil
// sess removes whatever is there. It reports the removed entry.
func (r *Registry) Remove(guildID string, sess Session) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[guildID]
	if !ok || (sess != nil && e.Session != sess) {
		return Entry{}, false
	}
	delete(r.entries, guildID)
	return e, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Entries returns a snapshot of all entries ordered by guild ID.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.GuildID, b.GuildID) })
	return out
}
