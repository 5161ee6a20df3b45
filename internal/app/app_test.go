package app_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/voxbridge/internal/app"
	"github.com/MrWong99/voxbridge/internal/config"
	"github.com/MrWong99/voxbridge/internal/playliststore"
)

func writeTrack(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), make([]byte, 3840), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...app.Option) (*app.App, *connectorSet) {
	t.Helper()
	cs := newConnectorSet()
	opts = append([]app.Option{
		app.WithConnectors(cs.factory),
		app.WithLogger(slog.New(slog.DiscardHandler)),
	}, opts...)
	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, cs
}

func TestNew_BuildsFromConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTrack(t, dir, "Some_Song.pcm")
	writeTrack(t, dir, "notes.txt")

	a, _ := newTestApp(t, &config.Config{Library: config.LibraryConfig{Dir: dir}})

	if n := a.Library().Len(); n != 1 {
		t.Errorf("library has %d tracks, want 1", n)
	}
	if _, ok := a.Playlists().(*playliststore.MemoryStore); !ok {
		t.Errorf("playlists = %T, want in-memory store without a DSN", a.Playlists())
	}
	if a.Controller() == nil || a.Sessions() == nil || a.Metrics() == nil {
		t.Fatal("New left a subsystem nil")
	}
	for _, c := range a.Checkers() {
		if err := c.Check(context.Background()); err != nil {
			t.Errorf("checker %s: %v", c.Name, err)
		}
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *config.Config
		opts []app.Option
	}{
		{
			name: "no connector",
			cfg:  &config.Config{},
		},
		{
			name: "missing library dir",
			cfg:  &config.Config{Library: config.LibraryConfig{Dir: filepath.Join(t.TempDir(), "missing")}},
			opts: []app.Option{app.WithConnectors(newConnectorSet().factory)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := append([]app.Option{app.WithLogger(slog.New(slog.DiscardHandler))}, tt.opts...)
			if _, err := app.New(context.Background(), tt.cfg, opts...); err == nil {
				t.Fatal("New succeeded, want error")
			}
		})
	}
}

func TestApp_InjectedPlaylistStore(t *testing.T) {
	t.Parallel()

	store := playliststore.NewMemoryStore()
	a, _ := newTestApp(t, &config.Config{}, app.WithPlaylistStore(store))
	if a.Playlists() != store {
		t.Error("injected playlist store not used")
	}
}

func TestApp_Reload(t *testing.T) {
	t.Parallel()

	first, second := t.TempDir(), t.TempDir()
	writeTrack(t, first, "a.pcm")
	writeTrack(t, second, "b.pcm")
	writeTrack(t, second, "c.pcm")

	cfg := &config.Config{Library: config.LibraryConfig{Dir: first}}
	a, _ := newTestApp(t, cfg)

	next := &config.Config{Library: config.LibraryConfig{Dir: second}}
	if err := a.Reload(context.Background(), config.Diff(cfg, next), next); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if n := a.Library().Len(); n != 2 {
		t.Errorf("library has %d tracks after reload, want 2", n)
	}
	if _, ok := a.Library().Lookup("b.pcm"); !ok {
		t.Error("b.pcm missing after reload")
	}

	// A diff without library changes is a no-op.
	if err := a.Reload(context.Background(), config.ConfigDiff{LogLevelChanged: true}, cfg); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if n := a.Library().Len(); n != 2 {
		t.Errorf("library has %d tracks after unrelated reload, want 2", n)
	}
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, _ := newTestApp(t, &config.Config{Library: config.LibraryConfig{Dir: dir, RescanInterval: time.Millisecond}})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx) }()

	// Picked up by the periodic rescan.
	writeTrack(t, dir, "late.pcm")
	waitFor(t, "periodic rescan", func() bool { return a.Library().Len() == 1 })

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_ShutdownLeavesSessions(t *testing.T) {
	t.Parallel()

	a, cs := newTestApp(t, &config.Config{})
	if _, err := a.Sessions().Join(context.Background(), "g1", "voice", "user"); err != nil {
		t.Fatal(err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, leaves := cs.get("g1").counts(); leaves != 1 {
		t.Errorf("leaves = %d, want 1", leaves)
	}
	if a.Sessions().IsActive("g1") {
		t.Error("session still registered after Shutdown")
	}
	// Second call is a no-op.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
