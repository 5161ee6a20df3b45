package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/internal/resilience"
	"github.com/MrWong99/voxbridge/pkg/playback"
)

// ErrJoinInProgress is returned when a join for the same guild is still
// running.
var ErrJoinInProgress = errors.New("app: voice join already in progress")

// Session is the part of a connected voice session the manager relies on.
// *voice.Session satisfies it.
type Session interface {
	playback.Sink

	// Done is closed once the session ended for good.
	Done() <-chan struct{}
}

// Connector joins and leaves voice channels in one guild.
type Connector interface {
	Connect(ctx context.Context, channelID string) (Session, error)
	Leave(ctx context.Context, sess Session) error
}

// ConnectorFactory returns the connector for a guild. It is called at most
// once per guild.
type ConnectorFactory func(guildID string) (Connector, error)

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Connectors ConnectorFactory
	Registry   *Registry
	Playback   *playback.Controller

	// Metrics is optional.
	Metrics *observe.Metrics

	// Breaker is the template for the per-guild join circuit breaker.
	// Cancelled joins never count as failures.
	Breaker resilience.CircuitBreakerConfig
}

// guildVoice is the per-guild join machinery.
type guildVoice struct {
	conn    Connector
	breaker *resilience.CircuitBreaker
}

// SessionManager manages the lifecycle of voice sessions: one per guild,
// recorded in the [Registry] while it lives and bound to the playback
// controller as its sink. All exported methods are safe for concurrent use.
type SessionManager struct {
	connectors ConnectorFactory
	registry   *Registry
	playback   *playback.Controller
	metrics    *observe.Metrics
	breaker    resilience.CircuitBreakerConfig

	mu      sync.Mutex
	guilds  map[string]*guildVoice
	joining map[string]struct{}

	watchers sync.WaitGroup
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	reg := cfg.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	return &SessionManager{
		connectors: cfg.Connectors,
		registry:   reg,
		playback:   cfg.Playback,
		metrics:    cfg.Metrics,
		breaker:    cfg.Breaker,
		guilds:     make(map[string]*guildVoice),
		joining:    make(map[string]struct{}),
	}
}

// Registry returns the registry of live sessions.
func (sm *SessionManager) Registry() *Registry { return sm.registry }

// guildLocked returns the join machinery for guildID, creating it on first
// use. sm.mu must be held.
func (sm *SessionManager) guildLocked(guildID string) (*guildVoice, error) {
	if g, ok := sm.guilds[guildID]; ok {
		return g, nil
	}
	conn, err := sm.connectors(guildID)
	if err != nil {
		return nil, err
	}
	cfg := sm.breaker
	cfg.Name = "voice-join/" + guildID
	cfg.Neutral = func(err error) bool { return errors.Is(err, context.Canceled) }
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(name string, from, to resilience.State) {
			slog.Warn("session: join breaker changed state", "breaker", name, "from", from, "to", to)
		}
	}
	g := &guildVoice{conn: conn, breaker: resilience.NewCircuitBreaker(cfg)}
	sm.guilds[guildID] = g
	return g, nil
}

// Join connects the bot to channelID in guildID and attaches the new session
// to the playback controller. userID is recorded as the requester.
//
// Returns [ErrAlreadyConnected] if the guild already has a session,
// [ErrJoinInProgress] if another join is running and
// [resilience.ErrCircuitOpen] while recent joins keep failing.
func (sm *SessionManager) Join(ctx context.Context, guildID, channelID, userID string) (Entry, error) {
	sm.mu.Lock()
	if _, ok := sm.registry.Get(guildID); ok {
		sm.mu.Unlock()
		return Entry{}, ErrAlreadyConnected
	}
	if _, ok := sm.joining[guildID]; ok {
		sm.mu.Unlock()
		return Entry{}, ErrJoinInProgress
	}
	g, err := sm.guildLocked(guildID)
	if err != nil {
		sm.mu.Unlock()
		return Entry{}, fmt.Errorf("session: connector for guild %s: %w", guildID, err)
	}
	sm.joining[guildID] = struct{}{}
	sm.mu.Unlock()

	defer func() {
		sm.mu.Lock()
		delete(sm.joining, guildID)
		sm.mu.Unlock()
	}()

	var sess Session
	err = g.breaker.Execute(func() error {
		var err error
		sess, err = g.conn.Connect(ctx, channelID)
		return err
	})
	if err != nil {
		return Entry{}, fmt.Errorf("session: join voice channel: %w", err)
	}

	e := Entry{
		GuildID:   guildID,
		ChannelID: channelID,
		StartedAt: time.Now().UTC(),
		StartedBy: userID,
		Session:   sess,
	}
	if err := sm.registry.Insert(e); err != nil {
		_ = g.conn.Leave(ctx, sess)
		return Entry{}, err
	}
	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(ctx, 1, metric.WithAttributes(observe.Attr("guild_id", guildID)))
	}
	sm.playback.Attach(guildID, sess)
	sm.watchers.Go(func() {
		<-sess.Done()
		sm.release(guildID, sess, "session ended")
	})

	slog.Info("session started",
		"guild_id", guildID,
		"channel_id", channelID,
		"user_id", userID,
	)
	return e, nil
}

// release drops the registry entry for sess and stops feeding it. It is a
// no-op when the guild already moved on to another session.
func (sm *SessionManager) release(guildID string, sess Session, reason string) {
	e, ok := sm.registry.Remove(guildID, sess)
	if !ok {
		return
	}
	sm.playback.Detach(guildID)
	if sm.metrics != nil {
		sm.metrics.ActiveSessions.Add(context.Background(), -1, metric.WithAttributes(observe.Attr("guild_id", guildID)))
	}
	slog.Info("session stopped",
		"guild_id", guildID,
		"channel_id", e.ChannelID,
		"reason", reason,
		"duration", time.Since(e.StartedAt).Round(time.Second),
	)
}

// Leave disconnects the guild's session. The playlist is kept so a later
// Join resumes where it left off.
//
// Returns [ErrNotConnected] if the guild has no session.
func (sm *SessionManager) Leave(ctx context.Context, guildID string) error {
	e, ok := sm.registry.Get(guildID)
	if !ok {
		return ErrNotConnected
	}
	sm.mu.Lock()
	g := sm.guilds[guildID]
	sm.mu.Unlock()

	sm.release(guildID, e.Session, "left")
	if g == nil {
		return nil
	}
	if err := g.conn.Leave(ctx, e.Session); err != nil {
		return fmt.Errorf("session: leave voice channel: %w", err)
	}
	return nil
}

// Info returns the live session of guildID.
func (sm *SessionManager) Info(guildID string) (Entry, bool) {
	return sm.registry.Get(guildID)
}

// IsActive reports whether guildID has a live session.
func (sm *SessionManager) IsActive(guildID string) bool {
	_, ok := sm.registry.Get(guildID)
	return ok
}

// Shutdown leaves every guild and waits for the sessions to end, bounded by
// ctx. Connectors that have a Close method are closed afterwards.
func (sm *SessionManager) Shutdown(ctx context.Context) error {
	var errs []error
	for _, e := range sm.registry.Entries() {
		if err := sm.Leave(ctx, e.GuildID); err != nil && !errors.Is(err, ErrNotConnected) {
			errs = append(errs, fmt.Errorf("guild %s: %w", e.GuildID, err))
		}
	}

	done := make(chan struct{})
	go func() {
		sm.watchers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	sm.mu.Lock()
	guilds := sm.guilds
	sm.guilds = make(map[string]*guildVoice)
	sm.mu.Unlock()
	for _, g := range guilds {
		if c, ok := g.conn.(interface{ Close() }); ok {
			c.Close()
		}
	}
	return errors.Join(errs...)
}
