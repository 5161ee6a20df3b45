// Package observe provides application-wide observability primitives for
// voxbridge: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voxbridge/pkg/voice"
)

// meterName is the instrumentation scope name used for all voxbridge metrics.
const meterName = "github.com/MrWong99/voxbridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Voice transport ---

	// PacketsSent counts media packets written. Attribute: guild_id.
	PacketsSent metric.Int64Counter

	// PacketsDropped counts packets that were not sent or not delivered.
	// Attributes: guild_id, reason ("encode", "send", "decode", "inbound_full").
	PacketsDropped metric.Int64Counter

	// DecryptFailures counts inbound datagrams that failed authentication.
	DecryptFailures metric.Int64Counter

	// Underruns counts ticks where silence stood in for missing audio.
	Underruns metric.Int64Counter

	// HeartbeatRTT tracks control-channel heartbeat round trips.
	HeartbeatRTT metric.Float64Histogram

	// HandshakeDuration tracks the time from dial to Ready.
	HandshakeDuration metric.Float64Histogram

	// Reconnects counts reconnect outcomes. Attribute: status ("ok", "failed").
	Reconnects metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveSpeakers is the moving average of remote speakers per session.
	ActiveSpeakers metric.Float64Gauge

	// --- Playback ---

	// TracksPlayed counts finished tracks. Attribute: skipped ("true", "false").
	TracksPlayed metric.Int64Counter

	// Commands counts slash commands. Attributes: command, status.
	Commands metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// control-channel latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.PacketsSent, err = m.Int64Counter("voxbridge.voice.packets_sent",
		metric.WithDescription("Media packets sent."),
	); err != nil {
		return nil, err
	}
	if met.PacketsDropped, err = m.Int64Counter("voxbridge.voice.packets_dropped",
		metric.WithDescription("Media packets dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.DecryptFailures, err = m.Int64Counter("voxbridge.voice.decrypt_failures",
		metric.WithDescription("Inbound datagrams that failed decryption."),
	); err != nil {
		return nil, err
	}
	if met.Underruns, err = m.Int64Counter("voxbridge.voice.underruns",
		metric.WithDescription("Outbound ticks with no audio buffered."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("voxbridge.voice.reconnects",
		metric.WithDescription("Voice reconnects by outcome."),
	); err != nil {
		return nil, err
	}
	if met.TracksPlayed, err = m.Int64Counter("voxbridge.playback.tracks",
		metric.WithDescription("Tracks finished, by whether they were skipped."),
	); err != nil {
		return nil, err
	}
	if met.Commands, err = m.Int64Counter("voxbridge.commands",
		metric.WithDescription("Slash commands handled by command and status."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.HeartbeatRTT, err = m.Float64Histogram("voxbridge.voice.heartbeat_rtt",
		metric.WithDescription("Control-channel heartbeat round-trip time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HandshakeDuration, err = m.Float64Histogram("voxbridge.voice.handshake.duration",
		metric.WithDescription("Time from dialing the control channel to Ready."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxbridge.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSpeakers, err = m.Float64Gauge("voxbridge.voice.active_speakers",
		metric.WithDescription("Moving average of remote speakers per session."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxbridge.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTrack records a finished track.
func (m *Metrics) RecordTrack(ctx context.Context, guildID string, skipped bool) {
	m.TracksPlayed.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("guild_id", guildID),
			attribute.Bool("skipped", skipped),
		),
	)
}

// RecordCommand records a handled slash command.
func (m *Metrics) RecordCommand(ctx context.Context, command, status string) {
	m.Commands.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("command", command),
			attribute.String("status", status),
		),
	)
}

// Voice returns a [voice.Observer] that records into m with the guild_id
// attribute set.
func (m *Metrics) Voice(guildID string) voice.Observer {
	return &voiceObserver{
		m:     m,
		attrs: metric.WithAttributes(attribute.String("guild_id", guildID)),
		guild: attribute.String("guild_id", guildID),
	}
}

// voiceObserver adapts [Metrics] to [voice.Observer]. Observer calls come
// from the tick loop without a context, so measurements use Background.
type voiceObserver struct {
	m     *Metrics
	attrs metric.MeasurementOption
	guild attribute.KeyValue
}

var _ voice.Observer = (*voiceObserver)(nil)

func (o *voiceObserver) PacketSent() {
	o.m.PacketsSent.Add(context.Background(), 1, o.attrs)
}

func (o *voiceObserver) PacketDropped(reason string) {
	o.m.PacketsDropped.Add(context.Background(), 1,
		metric.WithAttributes(o.guild, attribute.String("reason", reason)))
}

func (o *voiceObserver) DecryptFailed() {
	o.m.DecryptFailures.Add(context.Background(), 1, o.attrs)
}

func (o *voiceObserver) Underrun() {
	o.m.Underruns.Add(context.Background(), 1, o.attrs)
}

func (o *voiceObserver) HeartbeatRTT(d time.Duration) {
	o.m.HeartbeatRTT.Record(context.Background(), d.Seconds(), o.attrs)
}

func (o *voiceObserver) HandshakeCompleted(d time.Duration) {
	o.m.HandshakeDuration.Record(context.Background(), d.Seconds(), o.attrs)
}

func (o *voiceObserver) Reconnect(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	o.m.Reconnects.Add(context.Background(), 1,
		metric.WithAttributes(o.guild, attribute.String("status", status)))
}

func (o *voiceObserver) ActiveSpeakers(avg float64) {
	o.m.ActiveSpeakers.Record(context.Background(), avg, o.attrs)
}
