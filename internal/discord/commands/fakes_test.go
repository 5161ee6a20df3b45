package commands

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxbridge/internal/app"
	"github.com/MrWong99/voxbridge/internal/discord"
	"github.com/MrWong99/voxbridge/internal/library"
	"github.com/MrWong99/voxbridge/internal/playliststore"
	"github.com/MrWong99/voxbridge/pkg/audio"
	"github.com/MrWong99/voxbridge/pkg/playback"
	"github.com/MrWong99/voxbridge/pkg/voice"
)

// ─── Fakes ────────────────────────────────────────────────────────────────────

// fakeSink discards audio and records state changes.
type fakeSink struct {
	mu     sync.Mutex
	states []voice.ActiveState
	done   chan struct{}
}

func newFakeSink() *fakeSink { return &fakeSink{done: make(chan struct{})} }

func (s *fakeSink) Push(audio.AudioFrame) {}

func (s *fakeSink) SetActive(st voice.ActiveState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *fakeSink) Done() <-chan struct{} { return s.done }

// fakeSessions mimics the session manager: Join attaches a sink to the
// playback controller, Leave detaches it.
type fakeSessions struct {
	pb *playback.Controller

	mu      sync.Mutex
	err     error
	entries map[string]app.Entry
	joins   int
}

func newFakeSessions(pb *playback.Controller) *fakeSessions {
	return &fakeSessions{pb: pb, entries: make(map[string]app.Entry)}
}

func (f *fakeSessions) Join(_ context.Context, guildID, channelID, userID string) (app.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins++
	if f.err != nil {
		return app.Entry{}, f.err
	}
	if _, ok := f.entries[guildID]; ok {
		return app.Entry{}, app.ErrAlreadyConnected
	}
	sink := newFakeSink()
	e := app.Entry{GuildID: guildID, ChannelID: channelID, StartedBy: userID, StartedAt: time.Now(), Session: sink}
	f.entries[guildID] = e
	f.pb.Attach(guildID, sink)
	return e, nil
}

func (f *fakeSessions) Leave(_ context.Context, guildID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entries[guildID]; !ok {
		return app.ErrNotConnected
	}
	delete(f.entries, guildID)
	f.pb.Detach(guildID)
	return nil
}

func (f *fakeSessions) Info(guildID string) (app.Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[guildID]
	return e, ok
}

func (f *fakeSessions) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joins
}

// fakeLibrary matches tracks by ID or case-insensitive title substring.
type fakeLibrary struct {
	tracks []playback.Track
}

func (l fakeLibrary) Search(q string, limit int) []library.Result {
	var out []library.Result
	for _, t := range l.tracks {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(t.Title), strings.ToLower(q)) {
			out = append(out, library.Result{Track: t, Score: 1})
		}
	}
	return out
}

func (l fakeLibrary) Resolve(q string) (playback.Track, error) {
	for _, t := range l.tracks {
		if t.ID == q {
			return t, nil
		}
	}
	if r := l.Search(q, 1); len(r) > 0 {
		return r[0].Track, nil
	}
	return playback.Track{}, library.ErrNotFound
}

// endless produces silence until closed.
type endless struct{}

func (endless) Next() (audio.AudioFrame, error) {
	return audio.AudioFrame{Type: audio.FramePCM, Data: make([]byte, audio.PCMFrameBytes)}, nil
}

func (endless) Close() error { return nil }

// ─── Helpers ──────────────────────────────────────────────────────────────────

var testTracks = []playback.Track{
	{ID: "a.ogg", Title: "Alpha Song", Duration: 3*time.Minute + 5*time.Second},
	{ID: "b.ogg", Title: "Beta Song"},
	{ID: "c.ogg", Title: "Gamma Tune"},
}

type harness struct {
	mc        *MusicCommands
	router    *discord.CommandRouter
	pb        *playback.Controller
	sessions  *fakeSessions
	playlists *playliststore.MemoryStore
	perms     *discord.PermissionChecker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pb := playback.New(playback.OpenerFunc(func(context.Context, playback.Track) (playback.Source, error) {
		return endless{}, nil
	}))
	h := &harness{
		router:    discord.NewCommandRouter(),
		pb:        pb,
		sessions:  newFakeSessions(pb),
		playlists: playliststore.NewMemoryStore(),
		perms:     discord.NewPermissionChecker(""),
	}
	h.mc = NewMusicCommands(MusicConfig{
		Sessions:  h.sessions,
		Playback:  pb,
		Library:   fakeLibrary{tracks: testTracks},
		Playlists: h.playlists,
		Perms:     h.perms,
		VoiceChannel: func(_, userID string) (string, error) {
			if userID == "absent" {
				return "", discord.ErrNotInVoice
			}
			return "voice-1", nil
		},
	})
	h.mc.Register(h.router)
	t.Cleanup(func() {
		pb.Forget("g1")
		h.mc.Close(context.Background())
	})
	return h
}

// opt builds a command option.
func opt(name string, typ discordgo.ApplicationCommandOptionType, value any) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: typ, Value: value}
}

func str(name, v string) *discordgo.ApplicationCommandInteractionDataOption {
	return opt(name, discordgo.ApplicationCommandOptionString, v)
}

// JSON numbers decode as float64, which IntValue expects.
func num(name string, v int) *discordgo.ApplicationCommandInteractionDataOption {
	return opt(name, discordgo.ApplicationCommandOptionInteger, float64(v))
}

func boolean(name string, v bool) *discordgo.ApplicationCommandInteractionDataOption {
	return opt(name, discordgo.ApplicationCommandOptionBoolean, v)
}

func sub(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionSubCommand, Options: opts}
}

// command builds a guild slash command interaction from user u.
func command(name, u string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:      discordgo.InteractionApplicationCommand,
			GuildID:   "g1",
			ChannelID: "text-1",
			Member:    &discordgo.Member{User: &discordgo.User{ID: u}, Roles: []string{"member"}},
			Data:      discordgo.ApplicationCommandInteractionData{Name: name, Options: opts},
		},
	}
}

func button(customID string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:    discordgo.InteractionMessageComponent,
			GuildID: "g1",
			Member:  &discordgo.Member{User: &discordgo.User{ID: "u1"}},
			Data:    discordgo.MessageComponentInteractionData{CustomID: customID},
		},
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}
