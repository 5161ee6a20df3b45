package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// envOverrides are the settings that may come from the environment. Secrets
// belong here rather than in the YAML file.
type envOverrides struct {
	LogLevel     LogLevel `env:"VOXBRIDGE_LOG_LEVEL"`
	DiscordToken string   `env:"VOXBRIDGE_DISCORD_TOKEN"`
	GuildID      string   `env:"VOXBRIDGE_DISCORD_GUILD_ID"`
	PostgresDSN  string   `env:"VOXBRIDGE_POSTGRES_DSN"`
	S3Endpoint   string   `env:"VOXBRIDGE_S3_ENDPOINT"`
	S3AccessKey  string   `env:"VOXBRIDGE_S3_ACCESS_KEY"`
	S3SecretKey  string   `env:"VOXBRIDGE_S3_SECRET_KEY"`
	S3Bucket     string   `env:"VOXBRIDGE_S3_BUCKET"`
}

// Load reads the YAML configuration file at path, applies environment
// overrides and returns a validated [Config].
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, envconfig.OsLookuper())
}

// LoadWithEnv is [Load] with an explicit environment source.
func LoadWithEnv(path string, env envconfig.Lookuper) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := ApplyEnv(context.Background(), cfg, env); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Environment overrides are not applied. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := decode(r)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays the VOXBRIDGE_* environment variables read through env
// onto cfg. Unset variables leave the file's values alone.
func ApplyEnv(ctx context.Context, cfg *Config, env envconfig.Lookuper) error {
	var o envOverrides
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &o, Lookuper: env}); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	if o.LogLevel != "" {
		cfg.Server.LogLevel = o.LogLevel
	}
	set(&cfg.Discord.Token, o.DiscordToken)
	set(&cfg.Discord.GuildID, o.GuildID)
	set(&cfg.Playlists.PostgresDSN, o.PostgresDSN)

	if o.S3Endpoint != "" || o.S3AccessKey != "" || o.S3SecretKey != "" || o.S3Bucket != "" {
		if cfg.Library.S3 == nil {
			cfg.Library.S3 = &S3Config{}
		}
		set(&cfg.Library.S3.Endpoint, o.S3Endpoint)
		set(&cfg.Library.S3.AccessKey, o.S3AccessKey)
		set(&cfg.Library.S3.SecretKey, o.S3SecretKey)
		set(&cfg.Library.S3.Bucket, o.S3Bucket)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Voice
	v := cfg.Voice
	nonNegative := []struct {
		name  string
		value int64
	}{
		{"voice.heartbeat_miss_limit", int64(v.HeartbeatMissLimit)},
		{"voice.max_reconnects", int64(v.MaxReconnects)},
		{"voice.reconnect_backoff", int64(v.ReconnectBackoff)},
		{"voice.silence_frames", int64(v.SilenceFrames)},
		{"voice.gain_ramp_samples", int64(v.GainRampSamples)},
		{"voice.speaker_idle_timeout", int64(v.SpeakerIdleTimeout)},
		{"voice.output_buffer", int64(v.OutputBuffer)},
		{"voice.bitrate", int64(v.Bitrate)},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", f.name))
		}
	}
	if v.Bitrate != 0 && (v.Bitrate < 6000 || v.Bitrate > 510000) {
		errs = append(errs, fmt.Errorf("voice.bitrate %d is out of range [6000, 510000]", v.Bitrate))
	}

	// Library
	if s3 := cfg.Library.S3; s3 != nil {
		if s3.Endpoint == "" {
			errs = append(errs, errors.New("library.s3.endpoint is required when library.s3 is set"))
		}
		if s3.Bucket == "" {
			errs = append(errs, errors.New("library.s3.bucket is required when library.s3 is set"))
		}
	}
	if cfg.Library.RescanInterval < 0 {
		errs = append(errs, errors.New("library.rescan_interval must not be negative"))
	}
	if cfg.Library.Dir == "" && cfg.Library.S3 == nil {
		slog.Warn("config: no library.dir or library.s3 configured; /play will find nothing")
	}

	// Playlists
	if cfg.Playlists.PostgresDSN == "" {
		slog.Warn("config: playlists.postgres_dsn is empty; saved playlists will not survive a restart")
	}

	return errors.Join(errs...)
}
