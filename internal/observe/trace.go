package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for every voxbridge span.
const tracerName = "github.com/MrWong99/voxbridge"

// Tracer returns the voxbridge [trace.Tracer]. It is resolved from the
// globally registered [trace.TracerProvider] on every call, so spans follow
// whatever provider [InitProvider] (or a test) installed last. Before any
// provider is installed the tracer is a no-op.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span as a child of any span already in ctx and
// returns the updated context and span. The caller must call span.End()
// when done.
//
// Slash command handlers open one span per interaction ("discord.command
// <name>"); the voice session opens its own spans for handshakes and
// resumes.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID extracts the trace ID from the span context in ctx. It
// returns the empty string when ctx carries no span with a valid trace ID.
//
// The trace ID doubles as the identifier that ties the log lines of one
// interaction together.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the span context in ctx. When no active span is present, the returned
// logger is [slog.Default] without extra attributes.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
