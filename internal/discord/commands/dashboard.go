package commands

import (
	"context"

	"github.com/MrWong99/voxbridge/internal/app"
	"github.com/MrWong99/voxbridge/internal/discord"
)

// startDashboard posts a now-playing dashboard for the session e into
// textChannelID, replacing any previous dashboard of the guild.
func (mc *MusicCommands) startDashboard(guildID, textChannelID string, e app.Entry) {
	if mc.cfg.Dashboards == nil || textChannelID == "" {
		return
	}
	d := discord.NewDashboard(discord.DashboardConfig{
		Session:   mc.cfg.Dashboards,
		ChannelID: textChannelID,
		Interval:  mc.cfg.DashboardInterval,
		GetData:   func() discord.NowPlaying { return mc.nowPlaying(guildID, e) },
	})

	mc.mu.Lock()
	prev := mc.dashboards[guildID]
	mc.dashboards[guildID] = d
	mc.mu.Unlock()

	if prev != nil {
		prev.Stop(context.Background())
	}
	d.Start(context.Background())

	go func() {
		<-d.Finished()
		mc.mu.Lock()
		if mc.dashboards[guildID] == d {
			delete(mc.dashboards, guildID)
		}
		mc.mu.Unlock()
	}()
}

// stopDashboard ends the guild's dashboard, if any.
func (mc *MusicCommands) stopDashboard(ctx context.Context, guildID string) {
	mc.mu.Lock()
	d := mc.dashboards[guildID]
	delete(mc.dashboards, guildID)
	mc.mu.Unlock()
	if d != nil {
		d.Stop(ctx)
	}
}

// Close stops every running dashboard.
func (mc *MusicCommands) Close(ctx context.Context) {
	mc.mu.Lock()
	ds := make([]*discord.Dashboard, 0, len(mc.dashboards))
	for g, d := range mc.dashboards {
		ds = append(ds, d)
		delete(mc.dashboards, g)
	}
	mc.mu.Unlock()
	for _, d := range ds {
		d.Stop(ctx)
	}
}

// nowPlaying snapshots what the dashboard of session e shows. The session
// counts as connected only while it is still the guild's registered one.
func (mc *MusicCommands) nowPlaying(guildID string, e app.Entry) discord.NowPlaying {
	cur, ok := mc.cfg.Sessions.Info(guildID)
	pl := mc.cfg.Playback.Playlist(guildID)
	t, has := pl.CurrentTrack()
	return discord.NowPlaying{
		Connected:      ok && cur.Session == e.Session,
		VoiceChannelID: e.ChannelID,
		StartedAt:      e.StartedAt,
		Track:          t,
		HasTrack:       has,
		State:          mc.cfg.Playback.State(guildID),
		Queued:         len(pl.Upcoming()),
		LoopOne:        pl.LoopOne,
		LoopAll:        pl.LoopAll,
	}
}
