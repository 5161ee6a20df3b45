package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/voxbridge/pkg/playback"
	"github.com/MrWong99/voxbridge/pkg/voice"
)

// MessageEditor is the part of *discordgo.Session the dashboard needs.
type MessageEditor interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ MessageEditor = (*discordgo.Session)(nil)

// NowPlaying is the data a dashboard renders.
type NowPlaying struct {
	// Connected is false once the voice session ended; the dashboard then
	// posts its final embed and stops.
	Connected bool

	// VoiceChannelID is the voice channel the bot plays in.
	VoiceChannelID string

	// StartedAt is when the voice session started.
	StartedAt time.Time

	Track    playback.Track
	HasTrack bool
	State    voice.ActiveState

	// Queued is the number of tracks after the current one.
	Queued  int
	LoopOne bool
	LoopAll bool
}

// embedColorGreen is the embed sidebar color while connected.
const embedColorGreen = 0x2ECC71

// embedColorRed is the embed sidebar color once the session has ended.
const embedColorRed = 0xE74C3C

// defaultInterval is the default dashboard update interval.
const defaultInterval = 10 * time.Second

// Dashboard renders and periodically updates a "now playing" embed in a
// text channel. The embed is created on Start and edited in place every
// update interval.
//
// Thread-safe for concurrent use.
type Dashboard struct {
	mu        sync.Mutex
	session   MessageEditor
	channelID string
	messageID string // embed message; created on first update
	interval  time.Duration
	getData   func() NowPlaying
	done      chan struct{}
	stopOnce  sync.Once
	finished  chan struct{}
}

// DashboardConfig holds dependencies for creating a Dashboard.
type DashboardConfig struct {
	Session   MessageEditor
	ChannelID string
	Interval  time.Duration // Default: 10 seconds
	GetData   func() NowPlaying
}

// NewDashboard creates a Dashboard.
func NewDashboard(cfg DashboardConfig) *Dashboard {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}
	return &Dashboard{
		session:   cfg.Session,
		channelID: cfg.ChannelID,
		interval:  interval,
		getData:   cfg.GetData,
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

// Start begins the periodic update loop in a background goroutine.
func (d *Dashboard) Start(ctx context.Context) {
	go d.loop(ctx)
}

// Stop halts the update loop and posts the final embed. It waits for the
// loop to exit.
func (d *Dashboard) Stop(ctx context.Context) {
	d.stopOnce.Do(func() { close(d.done) })
	select {
	case <-d.finished:
	case <-ctx.Done():
	}
}

// Finished is closed once the loop has exited.
func (d *Dashboard) Finished() <-chan struct{} { return d.finished }

// loop runs the periodic embed update until the session ends, Stop is
// called or ctx is cancelled.
func (d *Dashboard) loop(ctx context.Context) {
	defer close(d.finished)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		data := d.getData()
		if !data.Connected {
			d.post(buildEndedEmbed(data))
			return
		}
		d.post(buildEmbed(data))

		select {
		case <-d.done:
			d.post(buildEndedEmbed(d.getData()))
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// post creates the message on first use and edits it afterwards.
func (d *Dashboard) post(embed *discordgo.MessageEmbed) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.messageID == "" {
		msg, err := d.session.ChannelMessageSendEmbed(d.channelID, embed)
		if err != nil {
			slog.Warn("dashboard: failed to create embed message", "channel", d.channelID, "err", err)
			return
		}
		d.messageID = msg.ID
		slog.Debug("dashboard: created embed message", "message_id", msg.ID, "channel", d.channelID)
		return
	}
	if _, err := d.session.ChannelMessageEditEmbed(d.channelID, d.messageID, embed); err != nil {
		slog.Warn("dashboard: failed to edit embed message", "message_id", d.messageID, "err", err)
	}
}

// buildEmbed creates the live embed.
func buildEmbed(data NowPlaying) *discordgo.MessageEmbed {
	title := "Nothing playing"
	if data.HasTrack {
		title = data.Track.Title
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "State", Value: data.State.String(), Inline: true},
		{Name: "Up next", Value: fmt.Sprintf("%d tracks", data.Queued), Inline: true},
		{Name: "Loop", Value: loopLabel(data.LoopOne, data.LoopAll), Inline: true},
		{Name: "Channel", Value: fmt.Sprintf("<#%s>", data.VoiceChannelID), Inline: true},
		{Name: "Connected for", Value: formatDuration(time.Since(data.StartedAt)), Inline: true},
	}
	if data.HasTrack && data.Track.Duration > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Length", Value: formatDuration(data.Track.Duration), Inline: true,
		})
	}
	return &discordgo.MessageEmbed{
		Title:  title,
		Color:  embedColorGreen,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Now playing",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// buildEndedEmbed creates the final embed after the bot left the channel.
func buildEndedEmbed(data NowPlaying) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Disconnected",
		Description: "Left the voice channel.",
		Color:       embedColorRed,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Connected for", Value: formatDuration(time.Since(data.StartedAt)), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Session ended",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func loopLabel(one, all bool) string {
	switch {
	case one:
		return "song"
	case all:
		return "queue"
	default:
		return "off"
	}
}

// formatDuration formats a duration as "Xh Ym Zs".
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
