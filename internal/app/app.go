// Package app wires all voxbridge subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the track library, the
// saved-playlist store, the playback controller and the per-guild session
// manager; Run drives background work until its context ends; Shutdown
// tears everything down in order.
//
// For testing, inject fakes via functional options (WithLibrary,
// WithPlaylistStore, WithConnectors, ...). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxbridge/internal/config"
	"github.com/MrWong99/voxbridge/internal/health"
	"github.com/MrWong99/voxbridge/internal/library"
	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/internal/playliststore"
	"github.com/MrWong99/voxbridge/internal/resilience"
	discordaudio "github.com/MrWong99/voxbridge/pkg/audio/discord"
	"github.com/MrWong99/voxbridge/pkg/audio/opus"
	"github.com/MrWong99/voxbridge/pkg/playback"
	"github.com/MrWong99/voxbridge/pkg/voice"
)

var _ Session = (*voice.Session)(nil)

// joinBreaker is the default circuit breaker for voice joins.
var joinBreaker = resilience.CircuitBreakerConfig{
	MaxFailures:  3,
	ResetTimeout: time.Minute,
	HalfOpenMax:  1,
}

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config
	log *slog.Logger

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics    *observe.Metrics
	library    *library.Library
	playlists  playliststore.Store
	controller *playback.Controller
	sessions   *SessionManager
	discord    *discordgo.Session
	connectors ConnectorFactory

	// s3 is the library's object store, if configured. Guarded by mu.
	mu sync.Mutex
	s3 *library.S3Store

	// rescanInterval and reschedule let Reload change the periodic rescan.
	rescanInterval time.Duration
	reschedule     chan struct{}

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLibrary injects a track library instead of building one from config.
func WithLibrary(l *library.Library) Option {
	return func(a *App) { a.library = l }
}

// WithPlaylistStore injects a saved-playlist store instead of creating one
// from config.
func WithPlaylistStore(s playliststore.Store) Option {
	return func(a *App) { a.playlists = s }
}

// WithMetrics sets the metric instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithDiscord makes New join voice channels through dg.
func WithDiscord(dg *discordgo.Session) Option {
	return func(a *App) { a.discord = dg }
}

// WithConnectors injects the voice connector factory. It takes precedence
// over WithDiscord.
func WithConnectors(f ConnectorFactory) Option {
	return func(a *App) { a.connectors = f }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It scans the library
// once; a failing scan is logged, not fatal, so the bot still starts with an
// unreachable bucket.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:            cfg,
		log:            slog.Default(),
		rescanInterval: cfg.Library.RescanInterval,
		reschedule:     make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Track library ─────────────────────────────────────────────────
	if err := a.initLibrary(ctx); err != nil {
		return nil, fmt.Errorf("app: init library: %w", err)
	}

	// ── 2. Saved playlists ───────────────────────────────────────────────
	if err := a.initPlaylists(ctx); err != nil {
		return nil, fmt.Errorf("app: init playlists: %w", err)
	}

	// ── 3. Playback controller ───────────────────────────────────────────
	a.controller = playback.New(a.library, playback.WithLogger(a.log))
	a.controller.OnCompletion(func(ev playback.CompletionEvent) {
		a.metrics.RecordTrack(context.Background(), ev.GuildID, ev.WasSkipped)
		a.log.Debug("app: track finished",
			"guild_id", ev.GuildID,
			"track", ev.Track.ID,
			"skipped", ev.WasSkipped,
		)
	})

	// ── 4. Voice sessions ────────────────────────────────────────────────
	if a.connectors == nil {
		if a.discord == nil {
			a.runClosers()
			return nil, errors.New("app: no voice connector configured")
		}
		a.connectors = a.platformConnectors
	}
	a.sessions = NewSessionManager(SessionManagerConfig{
		Connectors: a.connectors,
		Registry:   NewRegistry(),
		Playback:   a.controller,
		Metrics:    a.metrics,
		Breaker:    joinBreaker,
	})

	a.log.Info("app initialised",
		"tracks", a.library.Len(),
		"playlists", fmt.Sprintf("%T", a.playlists),
	)
	return a, nil
}

func (a *App) initLibrary(ctx context.Context) error {
	if a.library != nil {
		return nil
	}
	stores, s3, err := a.libraryStores(a.cfg.Library)
	if err != nil {
		return err
	}
	a.s3 = s3
	a.library = library.New(stores, library.WithLogger(a.log))
	if err := a.library.Rescan(ctx); err != nil {
		a.log.Warn("app: initial library scan incomplete", "err", err)
	}
	return nil
}

// libraryStores builds the stores for cfg in lookup order: the object store
// first, the local directory as its fallback.
func (a *App) libraryStores(cfg config.LibraryConfig) ([]library.Store, *library.S3Store, error) {
	var (
		stores []library.Store
		s3     *library.S3Store
	)
	if cfg.S3 != nil {
		var err error
		s3, err = library.NewS3Store(library.S3Options{
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			Secure:    cfg.S3.Secure,
		})
		if err != nil {
			return nil, nil, err
		}
		stores = append(stores, s3)
	}
	if cfg.Dir != "" {
		dir, err := library.NewDirStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		stores = append(stores, dir)
	}
	if len(stores) == 0 {
		a.log.Warn("app: no library source configured; /play will find nothing")
	}
	return stores, s3, nil
}

func (a *App) initPlaylists(ctx context.Context) error {
	if a.playlists != nil {
		return nil
	}
	if a.cfg.Playlists.PostgresDSN == "" {
		a.log.Info("app: saved playlists kept in memory")
		a.playlists = playliststore.NewMemoryStore()
		return nil
	}
	store, err := playliststore.NewPostgresStore(ctx, a.cfg.Playlists.PostgresDSN)
	if err != nil {
		return err
	}
	a.playlists = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// voiceOptions translates the voice config into session options for one
// guild. Each guild gets its own encoder and metric observer.
func (a *App) voiceOptions(guildID string) ([]voice.Option, error) {
	v := a.cfg.Voice
	enc, err := opus.NewEncoder(v.Bitrate)
	if err != nil {
		return nil, err
	}
	return []voice.Option{
		voice.WithEncoder(enc),
		voice.WithObserver(a.metrics.Voice(guildID)),
		voice.WithLogger(a.log.With("guild_id", guildID)),
		voice.WithHeartbeatMissLimit(v.HeartbeatMissLimit),
		voice.WithSilenceFrames(v.SilenceFrames),
		voice.WithGainRampSamples(v.GainRampSamples),
		voice.WithSpeakerIdleTimeout(v.SpeakerIdleTimeout),
		voice.WithOutputBuffer(v.OutputBuffer),
		voice.WithReconnect(voice.ReconnectorConfig{
			MaxRetries: v.MaxReconnects,
			Backoff:    v.ReconnectBackoff,
		}),
	}, nil
}

// platformConnectors is the default [ConnectorFactory] on a live Discord
// session.
func (a *App) platformConnectors(guildID string) (Connector, error) {
	opts, err := a.voiceOptions(guildID)
	if err != nil {
		return nil, err
	}
	return &platformConnector{
		p:   discordaudio.New(a.discord, guildID, opts...),
		log: a.log.With("guild_id", guildID),
	}, nil
}

// platformConnector adapts a [discordaudio.Platform] to [Connector].
type platformConnector struct {
	p   *discordaudio.Platform
	log *slog.Logger
}

func (c *platformConnector) Connect(ctx context.Context, channelID string) (Session, error) {
	sess, err := c.p.Connect(ctx, channelID)
	if err != nil {
		return nil, err
	}
	sess.OnEvent(func(ev voice.Event) {
		switch ev.Type {
		case voice.EventReconnecting:
			c.log.Warn("app: voice session reconnecting", "err", ev.Err)
		case voice.EventReconnected:
			c.log.Info("app: voice session recovered")
		case voice.EventDisconnected:
			if ev.Err != nil {
				c.log.Error("app: voice session lost", "err", ev.Err)
			}
		}
	})
	return sess, nil
}

func (c *platformConnector) Leave(ctx context.Context, sess Session) error {
	vs, _ := sess.(*voice.Session)
	return c.p.Leave(ctx, vs)
}

func (c *platformConnector) Close() { c.p.Close() }

// ─── Accessors ───────────────────────────────────────────────────────────────

// Controller returns the playback controller.
func (a *App) Controller() *playback.Controller { return a.controller }

// Library returns the track library.
func (a *App) Library() *library.Library { return a.library }

// Playlists returns the saved-playlist store.
func (a *App) Playlists() playliststore.Store { return a.playlists }

// Sessions returns the voice session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Metrics returns the metric instruments.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// Checkers returns the readiness checks for the app's backing services.
func (a *App) Checkers() []health.Checker {
	return []health.Checker{
		health.Ping("playlists", a.playlists),
		{Name: "library", Check: a.pingLibrary},
	}
}

// pingLibrary checks the object store when one is configured.
func (a *App) pingLibrary(ctx context.Context) error {
	a.mu.Lock()
	s3 := a.s3
	a.mu.Unlock()
	if s3 == nil {
		return nil
	}
	return s3.Ping(ctx)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run rescans the library periodically and blocks until ctx is cancelled.
// It returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	a.log.Info("app running", "rescan_interval", a.interval())
	for {
		interval := a.interval()
		loopCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if interval > 0 {
				_ = a.library.Run(loopCtx, interval)
			}
		}()

		select {
		case <-ctx.Done():
		case <-a.reschedule:
		}
		cancel()
		<-done
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (a *App) interval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rescanInterval
}

// Reload applies the hot-reloadable parts of a config change that belong to
// the app: new library sources are installed and rescanned, and the rescan
// interval is updated.
func (a *App) Reload(ctx context.Context, diff config.ConfigDiff, cfg *config.Config) error {
	if !diff.LibraryChanged {
		return nil
	}
	stores, s3, err := a.libraryStores(cfg.Library)
	if err != nil {
		return fmt.Errorf("app: reload library: %w", err)
	}
	a.mu.Lock()
	a.s3 = s3
	a.rescanInterval = cfg.Library.RescanInterval
	a.mu.Unlock()

	a.library.SetStores(stores)
	select {
	case a.reschedule <- struct{}{}:
	default:
	}
	if err := a.library.Rescan(ctx); err != nil {
		return fmt.Errorf("app: reload library: %w", err)
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown leaves all voice channels, then runs the closers. It respects the
// context deadline: if ctx expires, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "sessions", a.sessions.Registry().Len(), "closers", len(a.closers))

		if err := a.sessions.Shutdown(ctx); err != nil {
			a.log.Warn("voice shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases whatever New built before it failed.
func (a *App) runClosers() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}
