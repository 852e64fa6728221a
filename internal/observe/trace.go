package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the MyndLens tracer.
const tracerName = "github.com/myndlens/myndlens-p-sub000"

// Tracer returns the package-level [trace.Tracer] for MyndLens. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// Span attribute keys for capture work.
const (
	AttrSessionID   = attribute.Key("myndlens.session_id")
	AttrUserID      = attribute.Key("myndlens.user_id")
	AttrMessageKind = attribute.Key("myndlens.message.kind")
)

// StartCaptureSpan starts a server span named "capture.<kind>" for one
// client message on a capture session.
func StartCaptureSpan(ctx context.Context, kind, sessionID, userID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "capture."+kind,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			AttrMessageKind.String(kind),
			AttrSessionID.String(sessionID),
			AttrUserID.String(userID),
		),
	)
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the OTel span context in ctx. When no active span is present, the returned
// logger is the default slog logger without extra attributes.
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

// SessionLogger returns [Logger] for ctx with the capture identifiers
// attached. Empty identifiers are omitted.
func SessionLogger(ctx context.Context, sessionID, userID string) *slog.Logger {
	l := Logger(ctx)
	if sessionID != "" {
		l = l.With(slog.String("session_id", sessionID))
	}
	if userID != "" {
		l = l.With(slog.String("user_id", userID))
	}
	return l
}
