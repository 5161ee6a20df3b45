// Command voxbridge is the main entry point for the voxbridge music bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxbridge/internal/app"
	"github.com/MrWong99/voxbridge/internal/config"
	discordbot "github.com/MrWong99/voxbridge/internal/discord"
	"github.com/MrWong99/voxbridge/internal/discord/commands"
	"github.com/MrWong99/voxbridge/internal/health"
	"github.com/MrWong99/voxbridge/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file with secret overrides")
	flag.Parse()

	// A missing .env is normal in production.
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "voxbridge: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxbridge: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxbridge: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("voxbridge starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, discordbot.Config{
		Token:    cfg.Discord.Token,
		GuildID:  cfg.Discord.GuildID,
		DJRoleID: cfg.Discord.DJRoleID,
	})
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}()
	slog.Info("discord bot connected", "guild_id", cfg.Discord.GuildID)

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg,
		app.WithDiscord(bot.Session()),
		app.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	music := commands.NewMusicCommands(commands.MusicConfig{
		Sessions:     application.Sessions(),
		Playback:     application.Controller(),
		Library:      application.Library(),
		Playlists:    application.Playlists(),
		Perms:        bot.Permissions(),
		VoiceChannel: bot.VoiceChannel,
		Metrics:      metrics,
		Dashboards:   bot.Session(),
	})
	music.Register(bot.Router())

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.DJRoleChanged {
			bot.Permissions().SetRole(diff.NewDJRoleID)
			slog.Info("dj role changed", "role_id", diff.NewDJRoleID)
		}
		if diff.LibraryChanged {
			if err := application.Reload(ctx, diff, new); err != nil {
				slog.Warn("library reload failed", "err", err)
			}
		}
		if len(diff.RestartRequired) > 0 {
			slog.Warn("config changes need a restart", "settings", diff.RestartRequired)
		}
	})
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })
	g.Go(func() error { return application.Run(gctx) })
	if cfg.Server.ListenAddr != "" {
		srv := newHTTPServer(cfg.Server.ListenAddr, provider, metrics,
			append(application.Checkers(), health.Gateway("discord", bot.Ready))...)
		g.Go(func() error {
			slog.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	runErr := g.Wait()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	music.Close(shutdownCtx)
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newHTTPServer serves /metrics, /healthz and /readyz.
func newHTTPServer(addr string, provider *observe.Provider, metrics *observe.Metrics, checkers ...health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", provider.Handler())
	health.New(checkers...).Register(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
