package playliststore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps playlists in process memory.
type MemoryStore struct {
	now func() time.Time

	mu     sync.RWMutex
	guilds map[string]map[string]Saved
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, guilds: make(map[string]map[string]Saved)}
}

// Save implements [Store].
func (s *MemoryStore) Save(_ context.Context, p Saved) error {
	key, err := normalizeName(p.Name)
	if err != nil {
		return fmt.Errorf("playliststore: save %q: %w", p.Name, err)
	}
	p.Name = key
	p.Tracks = slices.Clone(p.Tracks)
	p.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.guilds[p.GuildID]
	if g == nil {
		g = make(map[string]Saved)
		s.guilds[p.GuildID] = g
	}
	g[key] = p
	return nil
}

// Load implements [Store].
func (s *MemoryStore) Load(_ context.Context, guildID, name string) (Saved, error) {
	key, err := normalizeName(name)
	if err != nil {
		return Saved{}, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.guilds[guildID][key]
	if !ok {
		return Saved{}, ErrNotFound
	}
	p.Tracks = slices.Clone(p.Tracks)
	return p, nil
}

// List implements [Store].
func (s *MemoryStore) List(_ context.Context, guildID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.guilds[guildID]))
	for n := range s.guilds[guildID] {
		names = append(names, n)
	}
	slices.Sort(names)
	return names, nil
}

// Delete implements [Store].
func (s *MemoryStore) Delete(_ context.Context, guildID, name string) error {
	key, err := normalizeName(name)
	if err != nil {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.guilds[guildID][key]; !ok {
		return ErrNotFound
	}
	delete(s.guilds[guildID], key)
	return nil
}

// Ping implements [Store]. It always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close implements [Store]. It is a no-op.
func (s *MemoryStore) Close() {}
