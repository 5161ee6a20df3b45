package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LibraryChanged is true when the library sources or the rescan
	// interval changed; the library is rescanned.
	LibraryChanged bool

	// DJRoleChanged is true when discord.dj_role_id changed.
	DJRoleChanged bool
	NewDJRoleID   string

	// RestartRequired lists changed settings that are only read at startup.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Library.Dir != new.Library.Dir ||
		old.Library.RescanInterval != new.Library.RescanInterval ||
		!sameS3(old.Library.S3, new.Library.S3) {
		d.LibraryChanged = true
	}

	if old.Discord.DJRoleID != new.Discord.DJRoleID {
		d.DJRoleChanged = true
		d.NewDJRoleID = new.Discord.DJRoleID
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Discord.Token != new.Discord.Token || old.Discord.GuildID != new.Discord.GuildID {
		d.RestartRequired = append(d.RestartRequired, "discord")
	}
	if old.Voice != new.Voice {
		d.RestartRequired = append(d.RestartRequired, "voice")
	}
	if old.Playlists != new.Playlists {
		d.RestartRequired = append(d.RestartRequired, "playlists")
	}
	return d
}

func sameS3(a, b *S3Config) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
