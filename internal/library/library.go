package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxbridge/internal/resilience"
	"github.com/MrWong99/voxbridge/pkg/playback"
)

var _ playback.Opener = (*Library)(nil)

// Result is one ranked search hit.
type Result struct {
	Track playback.Track
	Score float64
}

// Option configures a [Library].
type Option func(*Library)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(lib *Library) { lib.log = l }
}

// WithBreaker sets the per-store circuit breaker template used when opening
// tracks. Not-found errors never trip it.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(lib *Library) { lib.breaker = cfg }
}

// Library is the in-memory index over a set of stores. It implements
// [playback.Opener]. All methods are safe for concurrent use.
type Library struct {
	log     *slog.Logger
	breaker resilience.CircuitBreakerConfig

	mu     sync.RWMutex
	group  *resilience.FallbackGroup[Store]
	list   []Store
	tracks []playback.Track
	byID   map[string]int
}

// New returns a library over stores, tried in order when opening. The index
// is empty until [Library.Rescan] runs.
func New(stores []Store, opts ...Option) *Library {
	l := &Library{
		log:     slog.Default(),
		breaker: resilience.CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(l)
	}
	l.SetStores(stores)
	return l
}

// SetStores replaces the backing stores. The index is kept until the next
// [Library.Rescan].
func (l *Library) SetStores(stores []Store) {
	cfg := l.breaker
	cfg.Neutral = func(err error) bool { return errors.Is(err, ErrNotFound) }
	g := resilience.NewFallbackGroup[Store](cfg)
	for _, s := range stores {
		g.Add(s.Name(), s)
	}

	l.mu.Lock()
	l.group = g
	l.list = slices.Clone(stores)
	l.mu.Unlock()
}

// Rescan lists every store and rebuilds the index. When several stores hold
// the same location the first store's entry wins. A failing store is logged
// and skipped; the index is only left untouched when every store failed.
func (l *Library) Rescan(ctx context.Context) error {
	l.mu.RLock()
	stores := l.list
	l.mu.RUnlock()

	var (
		errs   []error
		tracks []playback.Track
		byID   = make(map[string]int)
	)
	for _, s := range stores {
		listed, err := s.List(ctx)
		if err != nil {
			l.log.Warn("library: store scan failed", "store", s.Name(), "err", err)
			errs = append(errs, err)
			continue
		}
		for _, t := range listed {
			if _, dup := byID[t.ID]; dup {
				continue
			}
			byID[t.ID] = len(tracks)
			tracks = append(tracks, t)
		}
	}
	if len(stores) > 0 && len(errs) == len(stores) {
		return fmt.Errorf("library: rescan: %w", errors.Join(errs...))
	}

	l.mu.Lock()
	l.tracks = tracks
	l.byID = byID
	l.mu.Unlock()

	l.log.Info("library: index rebuilt", "tracks", len(tracks), "stores", len(stores))
	return errors.Join(errs...)
}

// Run rescans every interval until ctx is done. It returns ctx.Err().
func (l *Library) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.Rescan(ctx); err != nil && ctx.Err() == nil {
				l.log.Warn("library: periodic rescan", "err", err)
			}
		}
	}
}

// Len returns the number of indexed tracks.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tracks)
}

// Lookup returns the indexed track with the given id.
func (l *Library) Lookup(id string) (playback.Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.byID[id]
	if !ok {
		return playback.Track{}, false
	}
	return l.tracks[i], true
}

// Search ranks indexed tracks against q and returns at most limit results,
// best first. Ties are broken by title. limit <= 0 means no limit.
func (l *Library) Search(q string, limit int) []Result {
	prepared := newQuery(q)

	l.mu.RLock()
	var results []Result
	for _, t := range l.tracks {
		if score, ok := prepared.score(t.Title); ok {
			results = append(results, Result{Track: t, Score: score})
		}
	}
	l.mu.RUnlock()

	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.Track.Title, b.Track.Title)
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Resolve returns the track whose id equals q, or whose title matches q
// case-insensitively, or else the best search hit.
func (l *Library) Resolve(q string) (playback.Track, error) {
	if t, ok := l.Lookup(q); ok {
		return t, nil
	}
	l.mu.RLock()
	for _, t := range l.tracks {
		if strings.EqualFold(t.Title, strings.TrimSpace(q)) {
			l.mu.RUnlock()
			return t, nil
		}
	}
	l.mu.RUnlock()

	if hits := l.Search(q, 1); len(hits) > 0 {
		return hits[0].Track, nil
	}
	return playback.Track{}, fmt.Errorf("%w: %q", ErrNotFound, q)
}

// Open implements [playback.Opener]. Stores are tried in order; a store
// whose breaker is open is skipped.
func (l *Library) Open(ctx context.Context, t playback.Track) (playback.Source, error) {
	format := t.Format
	if format == "" {
		format = playback.FormatOf(t.Location)
	}
	if format == "" {
		return nil, fmt.Errorf("library: open %q: %w", t.ID, playback.ErrUnknownFormat)
	}

	l.mu.RLock()
	g := l.group
	l.mu.RUnlock()

	rc, err := resilience.ExecuteWithResult(g, func(s Store) (io.ReadCloser, error) {
		return s.Open(ctx, t.Location)
	})
	if err != nil {
		return nil, fmt.Errorf("library: open %q: %w", t.ID, err)
	}
	return playback.NewSource(format, rc)
}
