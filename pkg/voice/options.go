package voice

import (
	"log/slog"
	"time"

	"github.com/MrWong99/voxbridge/pkg/audio"
)

// Defaults for [Session] options.
const (
	DefaultHeartbeatMissLimit = 3
	DefaultSilenceFrames      = 5
	DefaultOutputBuffer       = 32
	DefaultSpeakerIdleTimeout = 5 * time.Minute
)

type options struct {
	encoder            audio.Encoder
	newDecoder         audio.DecoderFactory
	dialControl        ControlDialer
	dialMedia          MediaDialer
	observer           Observer
	logger             *slog.Logger
	heartbeatMissLimit int
	silenceFrames      int
	gainRampSamples    int
	speakerIdleTimeout time.Duration
	outputBuffer       int
	reconnect          ReconnectorConfig
}

// Option configures a [Session] during construction.
type Option func(*options)

// WithEncoder sets the codec used for PCM frames. Defaults to Opus.
func WithEncoder(enc audio.Encoder) Option {
	return func(o *options) { o.encoder = enc }
}

// WithDecoderFactory sets how per-speaker decoders are created. Defaults to
// Opus.
func WithDecoderFactory(f audio.DecoderFactory) Option {
	return func(o *options) { o.newDecoder = f }
}

// WithControlDialer replaces the WebSocket control channel.
func WithControlDialer(d ControlDialer) Option {
	return func(o *options) { o.dialControl = d }
}

// WithMediaDialer replaces the UDP media channel.
func WithMediaDialer(d MediaDialer) Option {
	return func(o *options) { o.dialMedia = d }
}

// WithObserver installs a metrics sink.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the base logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHeartbeatMissLimit sets how many consecutive unacknowledged
// heartbeats force a reconnect.
func WithHeartbeatMissLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.heartbeatMissLimit = n
		}
	}
}

// WithSilenceFrames sets how many silence frames precede audio after a
// resume. Zero disables them.
func WithSilenceFrames(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.silenceFrames = n
		}
	}
}

// WithGainRampSamples sets the fade length in samples per channel.
func WithGainRampSamples(n int) Option {
	return func(o *options) { o.gainRampSamples = n }
}

// WithSpeakerIdleTimeout sets how long a silent remote speaker keeps its
// buffer. Zero disables the idle sweep; buffers are then released only on
// leave events and at session end.
func WithSpeakerIdleTimeout(d time.Duration) Option {
	return func(o *options) { o.speakerIdleTimeout = d }
}

// WithOutputBuffer sets the capacity of the mixed inbound channel.
func WithOutputBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.outputBuffer = n
		}
	}
}

// WithReconnect configures the bounded recovery policy.
func WithReconnect(cfg ReconnectorConfig) Option {
	return func(o *options) { o.reconnect = cfg }
}
