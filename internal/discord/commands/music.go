// Package commands implements the voxbridge music slash commands on top of
// the playback controller, the track library and the saved-playlist store.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxbridge/internal/app"
	"github.com/MrWong99/voxbridge/internal/discord"
	"github.com/MrWong99/voxbridge/internal/library"
	"github.com/MrWong99/voxbridge/internal/observe"
	"github.com/MrWong99/voxbridge/internal/playliststore"
	"github.com/MrWong99/voxbridge/pkg/playback"
	"github.com/MrWong99/voxbridge/pkg/voice"
)

// Command outcome labels for the commands metric.
const (
	statusOK       = "ok"
	statusDenied   = "denied"
	statusInvalid  = "invalid"
	statusNotFound = "not_found"
	statusError    = "error"
)

const (
	// joinTimeout bounds a voice join including the handshake.
	joinTimeout = 30 * time.Second

	// searchLimit is the number of /search results shown.
	searchLimit = 10

	// maxChoices is Discord's limit for autocomplete choices.
	maxChoices = 25

	// maxQueueLines caps the /queue listing.
	maxQueueLines = 20

	// componentPrefix namespaces the /nowplaying buttons.
	componentPrefix = "music:"
)

// Sessions joins and leaves voice channels. *app.SessionManager satisfies it.
type Sessions interface {
	Join(ctx context.Context, guildID, channelID, userID string) (app.Entry, error)
	Leave(ctx context.Context, guildID string) error
	Info(guildID string) (app.Entry, bool)
}

var _ Sessions = (*app.SessionManager)(nil)

// Library finds tracks. *library.Library satisfies it.
type Library interface {
	Search(q string, limit int) []library.Result
	Resolve(q string) (playback.Track, error)
}

var _ Library = (*library.Library)(nil)

// MusicConfig holds the dependencies of [MusicCommands].
type MusicConfig struct {
	Sessions  Sessions
	Playback  *playback.Controller
	Library   Library
	Playlists playliststore.Store
	Perms     *discord.PermissionChecker

	// VoiceChannel returns the voice channel a user is in.
	VoiceChannel func(guildID, userID string) (string, error)

	// Metrics is optional.
	Metrics *observe.Metrics

	// Dashboards, if set, posts a live now-playing embed to the text
	// channel /join was used in.
	Dashboards discord.MessageEditor

	// DashboardInterval overrides the dashboard refresh interval.
	DashboardInterval time.Duration
}

// MusicCommands holds the dependencies for the music slash commands.
type MusicCommands struct {
	cfg MusicConfig

	mu         sync.Mutex
	dashboards map[string]*discord.Dashboard
}

// NewMusicCommands creates a MusicCommands.
func NewMusicCommands(cfg MusicConfig) *MusicCommands {
	return &MusicCommands{
		cfg:        cfg,
		dashboards: make(map[string]*discord.Dashboard),
	}
}

// musicHandler runs a command for a guild and returns its outcome label.
type musicHandler func(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string

// Register registers all music commands with the router.
func (mc *MusicCommands) Register(router *discord.CommandRouter) {
	defs := make(map[string]*discordgo.ApplicationCommand)
	for _, d := range mc.Definitions() {
		defs[d.Name] = d
	}

	router.RegisterCommand("join", defs["join"], mc.wrap("join", false, mc.handleJoin))
	router.RegisterCommand("leave", defs["leave"], mc.wrap("leave", true, mc.handleLeave))
	router.RegisterCommand("play", defs["play"], mc.wrap("play", false, mc.handlePlay))
	router.RegisterAutocomplete("play", mc.handlePlayAutocomplete)
	router.RegisterCommand("search", defs["search"], mc.wrap("search", false, mc.handleSearch))
	router.RegisterCommand("skip", defs["skip"], mc.wrap("skip", false, mc.handleSkip))
	router.RegisterCommand("stop", defs["stop"], mc.wrap("stop", true, mc.handleStop))
	router.RegisterCommand("pause", defs["pause"], mc.wrap("pause", false, mc.handlePause))
	router.RegisterCommand("queue", defs["queue"], mc.wrap("queue", false, mc.handleQueue))
	router.RegisterCommand("nowplaying", defs["nowplaying"], mc.wrap("nowplaying", false, mc.handleNowPlaying))
	router.RegisterCommand("move", defs["move"], mc.wrap("move", true, mc.handleMove))

	router.RegisterCommand("loop", defs["loop"], func(s discord.Responder, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/loop song` or `/loop all`.")
	})
	router.RegisterHandler("loop/song", mc.wrap("loop", true, mc.handleLoopSong))
	router.RegisterHandler("loop/all", mc.wrap("loop", true, mc.handleLoopAll))

	router.RegisterCommand("playlist", defs["playlist"], func(s discord.Responder, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/playlist save`, `/playlist load`, `/playlist list` or `/playlist delete`.")
	})
	router.RegisterHandler("playlist/save", mc.wrap("playlist", false, mc.handlePlaylistSave))
	router.RegisterHandler("playlist/load", mc.wrap("playlist", true, mc.handlePlaylistLoad))
	router.RegisterHandler("playlist/list", mc.wrap("playlist", false, mc.handlePlaylistList))
	router.RegisterHandler("playlist/delete", mc.wrap("playlist", true, mc.handlePlaylistDelete))

	router.RegisterComponentPrefix(componentPrefix, mc.handleComponent)
}

// Definitions returns the ApplicationCommand definitions for Discord.
func (mc *MusicCommands) Definitions() []*discordgo.ApplicationCommand {
	query := func(desc string, autocomplete bool) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:         discordgo.ApplicationCommandOptionString,
			Name:         "query",
			Description:  desc,
			Required:     true,
			Autocomplete: autocomplete,
		}
	}
	position := func(name, desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        name,
			Description: desc,
			Required:    true,
			MinValue:    ptr(1.0),
		}
	}
	enabled := []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionBoolean,
		Name:        "enabled",
		Description: "Turn looping on or off",
		Required:    true,
	}}
	name := []*discordgo.ApplicationCommandOption{{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "name",
		Description: "Playlist name",
		Required:    true,
		MaxLength:   playliststore.MaxNameLength,
	}}

	return []*discordgo.ApplicationCommand{
		{Name: "join", Description: "Join your current voice channel"},
		{Name: "leave", Description: "Leave the voice channel"},
		{
			Name:        "play",
			Description: "Queue a track and start playback",
			Options:     []*discordgo.ApplicationCommandOption{query("Track title or ID", true)},
		},
		{
			Name:        "search",
			Description: "Search the library",
			Options:     []*discordgo.ApplicationCommandOption{query("Words from the title", false)},
		},
		{Name: "skip", Description: "Skip the current track"},
		{Name: "stop", Description: "Stop playback"},
		{Name: "pause", Description: "Pause or resume playback"},
		{Name: "queue", Description: "Show the queue"},
		{Name: "nowplaying", Description: "Show the current track"},
		{
			Name:        "move",
			Description: "Move a queued track to another position",
			Options: []*discordgo.ApplicationCommandOption{
				position("from", "Current position"),
				position("to", "New position"),
			},
		},
		{
			Name:        "loop",
			Description: "Loop the current track or the whole queue",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "song",
					Description: "Repeat the current track",
					Options:     enabled,
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "all",
					Description: "Repeat the whole queue",
					Options:     enabled,
				},
			},
		},
		{
			Name:        "playlist",
			Description: "Save and restore queues",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "save",
					Description: "Save the queue under a name",
					Options:     name,
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "load",
					Description: "Replace the queue with a saved playlist",
					Options:     name,
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List saved playlists",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "delete",
					Description: "Delete a saved playlist",
					Options:     name,
				},
			},
		},
	}
}

// wrap applies the guild and DJ-role checks and records the outcome.
func (mc *MusicCommands) wrap(command string, privileged bool, h musicHandler) discord.HandlerFunc {
	return func(s discord.Responder, i *discordgo.InteractionCreate) {
		ctx, span := observe.StartSpan(context.Background(), "discord.command "+command,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(observe.Attr("command", command), observe.Attr("guild_id", i.GuildID)))
		defer span.End()

		var status string
		switch {
		case i.GuildID == "":
			discord.RespondEphemeral(s, i, "Music commands only work in a server.")
			status = statusInvalid
		case privileged && !mc.cfg.Perms.IsDJ(i):
			discord.RespondEphemeral(s, i, fmt.Sprintf("You need the DJ role to use /%s.", command))
			status = statusDenied
		default:
			status = h(s, i, i.GuildID)
		}
		span.SetAttributes(observe.Attr("status", status))
		if status == statusError {
			span.SetStatus(codes.Error, status)
			observe.Logger(ctx).Warn("commands: command failed", "command", command, "guild_id", i.GuildID)
		}
		if mc.cfg.Metrics != nil {
			mc.cfg.Metrics.RecordCommand(ctx, command, status)
		}
	}
}

// ─── Voice ────────────────────────────────────────────────────────────────────

// handleJoin handles /join.
func (mc *MusicCommands) handleJoin(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	if e, ok := mc.cfg.Sessions.Info(guildID); ok {
		discord.RespondEphemeral(s, i, fmt.Sprintf("I'm already in <#%s>.", e.ChannelID))
		return statusInvalid
	}
	userID := interactionUserID(i)
	channelID, err := mc.cfg.VoiceChannel(guildID, userID)
	if err != nil {
		discord.RespondEphemeral(s, i, "You must be in a voice channel.")
		return statusInvalid
	}

	// Defer reply since connecting may take a moment.
	discord.DeferReply(s, i)
	if err := mc.join(guildID, channelID, userID, i.ChannelID); err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to join: %v", err))
		return statusError
	}
	discord.FollowUp(s, i, fmt.Sprintf("Joined <#%s>.", channelID))
	return statusOK
}

// join connects to channelID, resumes a queue left from an earlier session
// and starts the dashboard in textChannelID.
func (mc *MusicCommands) join(guildID, channelID, userID, textChannelID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	e, err := mc.cfg.Sessions.Join(ctx, guildID, channelID, userID)
	if err != nil {
		return err
	}
	if mc.cfg.Playback.HasPlayable(guildID) {
		mc.cfg.Playback.Play(guildID)
	}
	mc.startDashboard(guildID, textChannelID, e)
	return nil
}

// handleLeave handles /leave.
func (mc *MusicCommands) handleLeave(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	if _, ok := mc.cfg.Sessions.Info(guildID); !ok {
		discord.RespondEphemeral(s, i, "I'm not in a voice channel.")
		return statusInvalid
	}
	discord.DeferReply(s, i)

	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	err := mc.cfg.Sessions.Leave(ctx, guildID)
	mc.stopDashboard(ctx, guildID)
	switch {
	case errors.Is(err, app.ErrNotConnected):
		discord.FollowUp(s, i, "I'm not in a voice channel.")
		return statusInvalid
	case err != nil:
		discord.FollowUp(s, i, fmt.Sprintf("Error: %v", err))
		return statusError
	}
	discord.FollowUp(s, i, "Left the voice channel.")
	return statusOK
}

// ─── Queue ────────────────────────────────────────────────────────────────────

// handlePlay handles /play. When the bot is not connected yet it joins the
// caller's voice channel first.
func (mc *MusicCommands) handlePlay(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	q := stringOption(i, "query")
	t, err := mc.cfg.Library.Resolve(q)
	if err != nil {
		discord.RespondEphemeral(s, i, fmt.Sprintf("No track matches %q.", q))
		return statusNotFound
	}
	userID := interactionUserID(i)
	t.Requester = userID

	if _, ok := mc.cfg.Sessions.Info(guildID); ok {
		discord.Respond(s, i, mc.enqueue(guildID, t))
		return statusOK
	}

	channelID, err := mc.cfg.VoiceChannel(guildID, userID)
	if err != nil {
		discord.RespondEphemeral(s, i, "You must be in a voice channel.")
		return statusInvalid
	}
	discord.DeferReply(s, i)
	if err := mc.join(guildID, channelID, userID, i.ChannelID); err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Failed to join: %v", err))
		return statusError
	}
	discord.FollowUp(s, i, mc.enqueue(guildID, t))
	return statusOK
}

// enqueue appends t, starts playback if the guild is idle and describes
// the result.
func (mc *MusicCommands) enqueue(guildID string, t playback.Track) string {
	pb := mc.cfg.Playback
	pb.Enqueue(guildID, t)
	idx := len(pb.Playlist(guildID).Tracks) - 1

	if st := pb.State(guildID); st != voice.ActivePlaying && st != voice.ActivePaused {
		pb.Play(guildID)
	}
	if pl := pb.Playlist(guildID); pl.Current == idx && pb.IsPlaying(guildID) {
		return fmt.Sprintf("Now playing **%s**.", t.Title)
	}
	return fmt.Sprintf("Queued **%s** at position %d.", t.Title, idx+1)
}

// handlePlayAutocomplete suggests library tracks while typing a /play query.
func (mc *MusicCommands) handlePlayAutocomplete(s discord.Responder, i *discordgo.InteractionCreate) {
	var typed string
	for _, o := range i.ApplicationCommandData().Options {
		if o.Focused {
			typed = o.StringValue()
		}
	}
	var choices []*discordgo.ApplicationCommandOptionChoice
	if strings.TrimSpace(typed) != "" {
		for _, r := range mc.cfg.Library.Search(typed, maxChoices) {
			value := r.Track.ID
			if len(value) > 100 {
				value = r.Track.Title
			}
			choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
				Name:  truncate(r.Track.Title, 100),
				Value: value,
			})
		}
	}
	discord.RespondChoices(s, i, choices)
}

// handleSearch handles /search.
func (mc *MusicCommands) handleSearch(s discord.Responder, i *discordgo.InteractionCreate, _ string) string {
	q := stringOption(i, "query")
	results := mc.cfg.Library.Search(q, searchLimit)
	if len(results) == 0 {
		discord.RespondEphemeral(s, i, fmt.Sprintf("No results for %q.", q))
		return statusNotFound
	}
	var b strings.Builder
	for n, r := range results {
		fmt.Fprintf(&b, "`%d.` %s%s\n", n+1, r.Track.Title, lengthSuffix(r.Track.Duration))
	}
	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Results for %q", q),
		Description: b.String(),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Use /play with a title to queue it"},
	})
	return statusOK
}

// handleQueue handles /queue.
func (mc *MusicCommands) handleQueue(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	pl := mc.cfg.Playback.Playlist(guildID)
	if len(pl.Tracks) == 0 {
		discord.RespondEphemeral(s, i, "The queue is empty.")
		return statusOK
	}
	var b strings.Builder
	for n, t := range pl.Tracks {
		if n == maxQueueLines {
			fmt.Fprintf(&b, "… and %d more\n", len(pl.Tracks)-n)
			break
		}
		marker := "  "
		if n == pl.Current {
			marker = "▶ "
		}
		fmt.Fprintf(&b, "%s`%d.` %s%s\n", marker, n+1, t.Title, lengthSuffix(t.Duration))
	}
	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Queue (%d tracks)", len(pl.Tracks)),
		Description: b.String(),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Loop: " + loopLabel(pl.LoopOne, pl.LoopAll)},
	})
	return statusOK
}

// handleMove handles /move. Positions are 1-based.
func (mc *MusicCommands) handleMove(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	from, to := intOption(i, "from"), intOption(i, "to")
	if !mc.cfg.Playback.Move(guildID, int(from)-1, int(to)-1) {
		n := len(mc.cfg.Playback.Playlist(guildID).Tracks)
		discord.RespondEphemeral(s, i, fmt.Sprintf("Invalid positions; the queue has %d tracks.", n))
		return statusInvalid
	}
	discord.Respond(s, i, fmt.Sprintf("Moved track %d to position %d.", from, to))
	return statusOK
}

// ─── Transport ────────────────────────────────────────────────────────────────

// handleSkip handles /skip and the skip button.
func (mc *MusicCommands) handleSkip(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	if !mc.cfg.Playback.Skip(guildID) {
		discord.RespondEphemeral(s, i, "Nothing to skip.")
		return statusInvalid
	}
	if t, ok := mc.cfg.Playback.Current(guildID); ok && mc.cfg.Playback.IsPlaying(guildID) {
		discord.Respond(s, i, fmt.Sprintf("Skipped. Now playing **%s**.", t.Title))
	} else {
		discord.Respond(s, i, "Skipped. The queue is finished.")
	}
	return statusOK
}

// handleStop handles /stop.
func (mc *MusicCommands) handleStop(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	if _, ok := mc.cfg.Sessions.Info(guildID); !ok {
		discord.RespondEphemeral(s, i, "I'm not in a voice channel.")
		return statusInvalid
	}
	mc.cfg.Playback.Stop(guildID)
	discord.Respond(s, i, "Stopped.")
	return statusOK
}

// handlePause handles /pause and the pause button.
func (mc *MusicCommands) handlePause(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	if st := mc.cfg.Playback.State(guildID); st != voice.ActivePlaying && st != voice.ActivePaused {
		discord.RespondEphemeral(s, i, "Nothing is playing.")
		return statusInvalid
	}
	if mc.cfg.Playback.PauseToggle(guildID) {
		discord.Respond(s, i, "Paused.")
	} else {
		discord.Respond(s, i, "Resumed.")
	}
	return statusOK
}

// handleLoopSong handles /loop song.
func (mc *MusicCommands) handleLoopSong(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	on := boolOption(i, "enabled")
	mc.cfg.Playback.SetLoopOne(guildID, on)
	discord.Respond(s, i, "Looping the current track: "+onOff(on)+".")
	return statusOK
}

// handleLoopAll handles /loop all.
func (mc *MusicCommands) handleLoopAll(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	on := boolOption(i, "enabled")
	mc.cfg.Playback.SetLoopAll(guildID, on)
	discord.Respond(s, i, "Looping the queue: "+onOff(on)+".")
	return statusOK
}

// handleNowPlaying handles /nowplaying.
func (mc *MusicCommands) handleNowPlaying(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	t, ok := mc.cfg.Playback.Current(guildID)
	if !ok {
		discord.RespondEphemeral(s, i, "Nothing is playing.")
		return statusOK
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "State", Value: mc.cfg.Playback.State(guildID).String(), Inline: true},
	}
	if t.Requester != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Requested by", Value: fmt.Sprintf("<@%s>", t.Requester), Inline: true})
	}
	if t.Duration > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Length", Value: formatLength(t.Duration), Inline: true})
	}
	discord.RespondEmbed(s, i,
		&discordgo.MessageEmbed{Title: t.Title, Fields: fields},
		discordgo.Button{Label: "Pause / Resume", Style: discordgo.SecondaryButton, CustomID: componentPrefix + "pause"},
		discordgo.Button{Label: "Skip", Style: discordgo.PrimaryButton, CustomID: componentPrefix + "skip"},
	)
	return statusOK
}

// handleComponent routes the /nowplaying buttons.
func (mc *MusicCommands) handleComponent(s discord.Responder, i *discordgo.InteractionCreate) {
	switch strings.TrimPrefix(i.MessageComponentData().CustomID, componentPrefix) {
	case "pause":
		mc.wrap("pause", false, mc.handlePause)(s, i)
	case "skip":
		mc.wrap("skip", false, mc.handleSkip)(s, i)
	default:
		discord.RespondEphemeral(s, i, "Unknown button.")
	}
}

// ─── Saved playlists ──────────────────────────────────────────────────────────

// handlePlaylistSave handles /playlist save.
func (mc *MusicCommands) handlePlaylistSave(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	name := stringOption(i, "name")
	pl := mc.cfg.Playback.Playlist(guildID)
	if len(pl.Tracks) == 0 {
		discord.RespondEphemeral(s, i, "The queue is empty.")
		return statusInvalid
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := mc.cfg.Playlists.Save(ctx, playliststore.Saved{
		GuildID:   guildID,
		Name:      name,
		Tracks:    pl.Tracks,
		CreatedBy: interactionUserID(i),
	})
	switch {
	case errors.Is(err, playliststore.ErrInvalidName):
		discord.RespondEphemeral(s, i, fmt.Sprintf("Playlist names must be 1 to %d characters.", playliststore.MaxNameLength))
		return statusInvalid
	case err != nil:
		discord.RespondError(s, i, err)
		return statusError
	}
	discord.Respond(s, i, fmt.Sprintf("Saved %d tracks as **%s**.", len(pl.Tracks), name))
	return statusOK
}

// handlePlaylistLoad handles /playlist load. The loaded tracks replace the
// queue; a connected guild starts playing the first one.
func (mc *MusicCommands) handlePlaylistLoad(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	name := stringOption(i, "name")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	saved, err := mc.cfg.Playlists.Load(ctx, guildID, name)
	switch {
	case errors.Is(err, playliststore.ErrNotFound), errors.Is(err, playliststore.ErrInvalidName):
		discord.RespondEphemeral(s, i, fmt.Sprintf("No saved playlist named **%s**.", name))
		return statusNotFound
	case err != nil:
		discord.RespondError(s, i, err)
		return statusError
	}

	pb := mc.cfg.Playback
	pb.Stop(guildID)
	pl := playback.NewPlaylist()
	pl.Tracks = saved.Tracks
	pl.LoopOne, pl.LoopAll = pb.LoopOne(guildID), pb.LoopAll(guildID)
	pb.SetPlaylist(guildID, pl)
	if _, ok := mc.cfg.Sessions.Info(guildID); ok {
		pb.Play(guildID)
	}
	discord.Respond(s, i, fmt.Sprintf("Loaded **%s** (%d tracks).", name, len(saved.Tracks)))
	return statusOK
}

// handlePlaylistList handles /playlist list.
func (mc *MusicCommands) handlePlaylistList(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	names, err := mc.cfg.Playlists.List(ctx, guildID)
	if err != nil {
		discord.RespondError(s, i, err)
		return statusError
	}
	if len(names) == 0 {
		discord.RespondEphemeral(s, i, "No saved playlists.")
		return statusOK
	}
	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "Saved playlists",
		Description: "• " + strings.Join(names, "\n• "),
	})
	return statusOK
}

// handlePlaylistDelete handles /playlist delete.
func (mc *MusicCommands) handlePlaylistDelete(s discord.Responder, i *discordgo.InteractionCreate, guildID string) string {
	name := stringOption(i, "name")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := mc.cfg.Playlists.Delete(ctx, guildID, name)
	switch {
	case errors.Is(err, playliststore.ErrNotFound), errors.Is(err, playliststore.ErrInvalidName):
		discord.RespondEphemeral(s, i, fmt.Sprintf("No saved playlist named **%s**.", name))
		return statusNotFound
	case err != nil:
		discord.RespondError(s, i, err)
		return statusError
	}
	discord.Respond(s, i, fmt.Sprintf("Deleted **%s**.", name))
	return statusOK
}
