package observe

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// newTestTracerProvider returns a TracerProvider with an in-memory exporter
// for inspecting recorded spans.
func newTestTracerProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

// captureDefaultLog swaps the default logger for a text logger writing to
// the returned buffer until the test ends.
func captureDefaultLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	tp, _ := newTestTracerProvider(t)
	seen := make(map[string]bool)
	for range 20 {
		ctx, span := tp.Tracer("test").Start(context.Background(), "capture.audio_chunk")
		cid := CorrelationID(ctx)
		span.End()

		if b, err := hex.DecodeString(cid); err != nil || len(b) != 16 {
			t.Fatalf("CorrelationID = %q, want 32 hex characters", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = true
	}
}

func TestStartSpan_UsesGlobalProvider(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartSpan(context.Background(), "capture.text_input")
	if CorrelationID(ctx) == "" {
		t.Error("StartSpan did not create a span with a trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "capture.text_input" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "capture.text_input")
	}
}

func TestLogger(t *testing.T) {
	tp, _ := newTestTracerProvider(t)
	spanCtx, span := tp.Tracer("test").Start(context.Background(), "log-test")
	defer span.End()

	tests := []struct {
		name      string
		ctx       context.Context
		wantTrace bool
	}{
		{name: "with span", ctx: spanCtx, wantTrace: true},
		{name: "without span", ctx: context.Background(), wantTrace: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureDefaultLog(t)
			Logger(tt.ctx).Info("fragment appended")

			logged := buf.String()
			for _, key := range []string{"trace_id=", "span_id="} {
				if got := strings.Contains(logged, key); got != tt.wantTrace {
					t.Errorf("contains %q = %v, want %v (log: %s)", key, got, tt.wantTrace, logged)
				}
			}
		})
	}
}

func TestSessionLogger_AddsIdentifiers(t *testing.T) {
	buf := captureDefaultLog(t)

	SessionLogger(context.Background(), "sess-1", "user-1").Info("hello")
	SessionLogger(context.Background(), "", "").Info("bare")

	logged := buf.String()
	for _, want := range []string{"session_id=sess-1", "user_id=user-1"} {
		if !strings.Contains(logged, want) {
			t.Errorf("log output missing %q, got: %s", want, logged)
		}
	}
	if n := strings.Count(logged, "session_id"); n != 1 {
		t.Errorf("session_id occurrences = %d, want 1 (log: %s)", n, logged)
	}
}

func TestStartCaptureSpan_Attributes(t *testing.T) {
	tp, exp := newTestTracerProvider(t)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, span := StartCaptureSpan(context.Background(), "audio_chunk", "sess-1", "user-1")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded spans = %d, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "capture.audio_chunk" {
		t.Errorf("span name = %q, want capture.audio_chunk", got.Name)
	}
	if got.SpanKind != trace.SpanKindServer {
		t.Errorf("span kind = %v, want server", got.SpanKind)
	}
	want := map[attribute.Key]string{
		AttrMessageKind: "audio_chunk",
		AttrSessionID:   "sess-1",
		AttrUserID:      "user-1",
	}
	for _, kv := range got.Attributes {
		if w, ok := want[kv.Key]; ok {
			if kv.Value.AsString() != w {
				t.Errorf("%s = %q, want %q", kv.Key, kv.Value.AsString(), w)
			}
			delete(want, kv.Key)
		}
	}
	for k := range want {
		t.Errorf("missing attribute %s", k)
	}
}
