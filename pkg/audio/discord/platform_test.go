package discord

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxbridge/pkg/audio/mock"
	"github.com/MrWong99/voxbridge/pkg/voice"
)

// ─── test helpers ─────────────────────────────────────────────────────────────

type joinCall struct {
	guildID, channelID string
}

// fakeGateway records voice joins and lets tests dispatch events.
type fakeGateway struct {
	mu       sync.Mutex
	joins    []joinCall
	joinErr  error
	handlers []any
	removed  int
	onJoin   func(channelID string)
}

func (g *fakeGateway) ChannelVoiceJoinManual(gID, cID string, _, _ bool) error {
	g.mu.Lock()
	g.joins = append(g.joins, joinCall{gID, cID})
	err, onJoin := g.joinErr, g.onJoin
	g.mu.Unlock()
	if err == nil && onJoin != nil && cID != "" {
		go onJoin(cID)
	}
	return err
}

func (g *fakeGateway) AddHandler(h any) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers = append(g.handlers, h)
	return func() {
		g.mu.Lock()
		g.removed++
		g.mu.Unlock()
	}
}

func (g *fakeGateway) dispatch(ev any) {
	g.mu.Lock()
	hs := append([]any(nil), g.handlers...)
	g.mu.Unlock()
	for _, h := range hs {
		switch fn := h.(type) {
		case func(*discordgo.Session, *discordgo.VoiceStateUpdate):
			if e, ok := ev.(*discordgo.VoiceStateUpdate); ok {
				fn(nil, e)
			}
		case func(*discordgo.Session, *discordgo.VoiceServerUpdate):
			if e, ok := ev.(*discordgo.VoiceServerUpdate); ok {
				fn(nil, e)
			}
		}
	}
}

func (g *fakeGateway) calls() []joinCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]joinCall(nil), g.joins...)
}

func stateUpdate(guildID, userID, channelID, sessionID string) *discordgo.VoiceStateUpdate {
	return &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{
		GuildID:   guildID,
		UserID:    userID,
		ChannelID: channelID,
		SessionID: sessionID,
	}}
}

func selfID() string { return "bot" }

// ─── Platform tests ──────────────────────────────────────────────────────────

func TestNewPlatform_RegistersHandlers(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	p := newPlatform(gw, "guild-123", selfID)
	if p.GuildID() != "guild-123" {
		t.Errorf("GuildID = %q", p.GuildID())
	}
	if len(gw.handlers) != 2 {
		t.Fatalf("registered %d handlers, want 2", len(gw.handlers))
	}
	p.Close()
	p.Close()
	if gw.removed != 2 {
		t.Errorf("removed %d handlers, want 2", gw.removed)
	}
}

// TestPlatform_CollectsCredentials checks that Connect waits for both
// dispatches and ignores events for other guilds and users. The handshake
// itself fails against the unreachable endpoint, which must make the
// platform leave the channel again.
func TestPlatform_CollectsCredentials(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	gotInit := make(chan string, 1)
	p := newPlatform(gw, "g1", selfID,
		voice.WithEncoder(&mock.Encoder{}),
		voice.WithControlDialer(func(_ context.Context, url string) (voice.MessageTransport, error) {
			gotInit <- url
			return nil, errors.New("no voice server in tests")
		}),
	)
	gw.onJoin = func(channelID string) {
		gw.dispatch(stateUpdate("g2", "bot", channelID, "other-guild"))
		gw.dispatch(stateUpdate("g1", "someone", channelID, "other-user"))
		gw.dispatch(&discordgo.VoiceServerUpdate{GuildID: "g2", Token: "x", Endpoint: "x.example"})
		gw.dispatch(stateUpdate("g1", "bot", channelID, "sess-1"))
		gw.dispatch(&discordgo.VoiceServerUpdate{GuildID: "g1", Token: "tok", Endpoint: "voice.example:80"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := p.Connect(ctx, "c1")
	if err == nil {
		t.Fatal("Connect succeeded against a failing dialer")
	}

	select {
	case url := <-gotInit:
		if url != "wss://voice.example?v=4" {
			t.Errorf("control url = %q", url)
		}
	default:
		t.Fatal("handshake never dialed the control channel")
	}

	calls := gw.calls()
	want := []joinCall{{"g1", "c1"}, {"g1", ""}}
	if len(calls) != len(want) {
		t.Fatalf("joins = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("join[%d] = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestPlatform_ConnectTimesOutWithoutCredentials(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	p := newPlatform(gw, "g1", selfID)
	gw.onJoin = func(channelID string) {
		gw.dispatch(stateUpdate("g1", "bot", channelID, "sess-1"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Connect(ctx, "c1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if calls := gw.calls(); len(calls) != 2 || calls[1].channelID != "" {
		t.Errorf("joins = %v, want join then leave", calls)
	}
}

func TestPlatform_RejectsConcurrentJoin(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	p := newPlatform(gw, "g1", selfID)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := p.Connect(ctx, "c1")
		first <- err
	}()
	// Wait until the first join is pending.
	for len(gw.calls()) == 0 {
		time.Sleep(time.Millisecond)
	}

	if _, err := p.Connect(context.Background(), "c2"); !errors.Is(err, ErrJoinInProgress) {
		t.Errorf("second Connect = %v, want ErrJoinInProgress", err)
	}
	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("first Connect = %v", err)
	}
}

func TestPlatform_JoinError(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{joinErr: errors.New("gateway closed")}
	p := newPlatform(gw, "g1", selfID)
	if _, err := p.Connect(context.Background(), "c1"); err == nil {
		t.Fatal("expected join error")
	}
	// The pending join is released.
	gw.mu.Lock()
	gw.joinErr = nil
	gw.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Connect(ctx, "c1"); errors.Is(err, ErrJoinInProgress) {
		t.Error("pending join leaked after error")
	}
}

func TestPlatform_LeaveWithoutSession(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	p := newPlatform(gw, "g1", selfID)
	if err := p.Leave(context.Background(), nil); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if calls := gw.calls(); len(calls) != 1 || calls[0] != (joinCall{"g1", ""}) {
		t.Errorf("joins = %v", calls)
	}
}

// fakeRelocator records server moves handed to a live session.
type fakeRelocator struct {
	mu    sync.Mutex
	moves []string
}

func (r *fakeRelocator) Relocate(token, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moves = append(r.moves, token+"@"+endpoint)
	return nil
}

func TestPlatform_FollowsVoiceServerMove(t *testing.T) {
	t.Parallel()

	gw := &fakeGateway{}
	p := newPlatform(gw, "g1", selfID)

	// Without a live session the update is only logged.
	gw.dispatch(&discordgo.VoiceServerUpdate{GuildID: "g1", Token: "tok0", Endpoint: "voice0.example"})

	live := &fakeRelocator{}
	p.mu.Lock()
	p.live = live
	p.mu.Unlock()

	gw.dispatch(&discordgo.VoiceServerUpdate{GuildID: "g2", Token: "x", Endpoint: "x.example"})
	gw.dispatch(&discordgo.VoiceServerUpdate{GuildID: "g1", Token: "tok2", Endpoint: "voice2.example"})

	live.mu.Lock()
	moves := append([]string(nil), live.moves...)
	live.mu.Unlock()
	if len(moves) != 1 || moves[0] != "tok2@voice2.example" {
		t.Fatalf("moves = %v, want [tok2@voice2.example]", moves)
	}

	if err := p.Leave(context.Background(), nil); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	gw.dispatch(&discordgo.VoiceServerUpdate{GuildID: "g1", Token: "tok3", Endpoint: "voice3.example"})
	live.mu.Lock()
	defer live.mu.Unlock()
	if len(live.moves) != 1 {
		t.Errorf("moves after Leave = %v", live.moves)
	}
}
