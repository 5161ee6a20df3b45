// Package discord joins Discord voice channels through a bwmarrin/discordgo
// gateway session and hands the resulting credentials to a [voice.Session].
//
// discordgo owns the main gateway. Joining a channel there produces two
// dispatches, VOICE_STATE_UPDATE (our session id) and VOICE_SERVER_UPDATE
// (token and endpoint); once both have arrived [Platform.Connect] runs the
// voice handshake itself instead of using discordgo's built-in voice client.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxbridge/pkg/voice"
)

// ErrJoinInProgress is returned when Connect is called while another join
// for the same guild is still waiting for its credentials.
var ErrJoinInProgress = errors.New("discord: voice join already in progress")

// relocator is a live voice session that can follow a server move.
type relocator interface {
	Relocate(token, endpoint string) error
}

// gateway is the part of *discordgo.Session the platform needs.
type gateway interface {
	ChannelVoiceJoinManual(gID, cID string, mute, deaf bool) error
	AddHandler(handler any) func()
}

// pendingJoin collects the voice credentials for one join.
type pendingJoin struct {
	channelID string
	sessionID string
	token     string
	endpoint  string
	done      chan struct{}
	closed    bool
}

func (j *pendingJoin) complete() bool {
	return j.sessionID != "" && j.token != "" && j.endpoint != ""
}

// Platform joins voice channels of one guild.
//
// Platform is safe for concurrent use.
type Platform struct {
	gw      gateway
	guildID string
	selfID  func() string
	opts    []voice.Option
	log     *slog.Logger

	mu       sync.Mutex
	pending  *pendingJoin
	live     relocator
	removers []func()
}

// New creates a Platform for guildID on an open discordgo session. opts are
// passed to every [voice.Session] the platform creates.
func New(dg *discordgo.Session, guildID string, opts ...voice.Option) *Platform {
	selfID := func() string {
		if dg.State == nil || dg.State.User == nil {
			return ""
		}
		return dg.State.User.ID
	}
	return newPlatform(dg, guildID, selfID, opts...)
}

func newPlatform(gw gateway, guildID string, selfID func() string, opts ...voice.Option) *Platform {
	p := &Platform{
		gw:      gw,
		guildID: guildID,
		selfID:  selfID,
		opts:    opts,
		log:     slog.Default().With("guild_id", guildID),
	}
	p.removers = append(p.removers,
		gw.AddHandler(p.onVoiceStateUpdate),
		gw.AddHandler(p.onVoiceServerUpdate),
	)
	return p
}

// GuildID returns the guild this platform joins channels in.
func (p *Platform) GuildID() string { return p.guildID }

// Connect joins channelID and runs the voice handshake. ctx bounds the join
// and the handshake only; the returned session lives until
// [Platform.Leave] or its own terminal [voice.EventDisconnected].
func (p *Platform) Connect(ctx context.Context, channelID string) (*voice.Session, error) {
	j := &pendingJoin{channelID: channelID, done: make(chan struct{})}
	p.mu.Lock()
	if p.pending != nil {
		p.mu.Unlock()
		return nil, ErrJoinInProgress
	}
	p.pending = j
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.pending = nil
		p.mu.Unlock()
	}()

	if err := p.gw.ChannelVoiceJoinManual(p.guildID, channelID, false, false); err != nil {
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, err)
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		p.leaveChannel()
		return nil, fmt.Errorf("discord: waiting for voice credentials: %w", ctx.Err())
	}

	p.mu.Lock()
	init := voice.InitData{
		GuildID:   p.guildID,
		ChannelID: channelID,
		UserID:    p.selfID(),
		SessionID: j.sessionID,
		Token:     j.token,
		Endpoint:  j.endpoint,
	}
	p.mu.Unlock()

	sess, err := voice.New(init, p.opts...)
	if err != nil {
		p.leaveChannel()
		return nil, fmt.Errorf("discord: create voice session: %w", err)
	}
	if err := sess.Connect(ctx); err != nil {
		p.leaveChannel()
		return nil, fmt.Errorf("discord: voice handshake: %w", err)
	}
	p.mu.Lock()
	p.live = sess
	p.mu.Unlock()
	p.log.Info("discord: joined voice channel", "channel_id", channelID)
	return sess, nil
}

// Leave disconnects sess and tells the gateway we left the channel.
func (p *Platform) Leave(ctx context.Context, sess *voice.Session) error {
	p.mu.Lock()
	p.live = nil
	p.mu.Unlock()

	var errs []error
	if sess != nil {
		if err := sess.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.leaveChannel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close unregisters the gateway handlers.
func (p *Platform) Close() {
	p.mu.Lock()
	removers := p.removers
	p.removers = nil
	p.mu.Unlock()
	for _, remove := range removers {
		remove()
	}
}

func (p *Platform) leaveChannel() error {
	if err := p.gw.ChannelVoiceJoinManual(p.guildID, "", false, false); err != nil {
		return fmt.Errorf("discord: leave voice channel: %w", err)
	}
	return nil
}

func (p *Platform) onVoiceStateUpdate(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	if e.VoiceState == nil || e.GuildID != p.guildID || e.UserID != p.selfID() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil || e.ChannelID != p.pending.channelID {
		return
	}
	p.pending.sessionID = e.SessionID
	p.maybeComplete()
}

func (p *Platform) onVoiceServerUpdate(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
	if e.GuildID != p.guildID {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == nil {
		p.relocateLocked(e.Token, e.Endpoint)
		return
	}
	p.pending.token = e.Token
	p.pending.endpoint = e.Endpoint
	p.maybeComplete()
}

// relocateLocked moves the live session to a new voice server. p.mu must be
// held.
func (p *Platform) relocateLocked(token, endpoint string) {
	if p.live == nil {
		p.log.Warn("discord: voice server update without a voice session", "endpoint", endpoint)
		return
	}
	if err := p.live.Relocate(token, endpoint); err != nil {
		p.log.Warn("discord: follow voice server move", "endpoint", endpoint, "error", err)
		return
	}
	p.log.Info("discord: following voice server move", "endpoint", endpoint)
}

// maybeComplete releases Connect once both dispatches arrived. p.mu must be
// held.
func (p *Platform) maybeComplete() {
	if !p.pending.closed && p.pending.complete() {
		p.pending.closed = true
		close(p.pending.done)
	}
}
