// Package observe provides application-wide observability primitives for
// MyndLens: OpenTelemetry metrics, distributed tracing, trace-aware
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider], so they can be scraped from /metrics. A
// package-level [DefaultMetrics] instance is provided for convenience; tests
// should use [NewMetrics] with their own [metric.MeterProvider].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all MyndLens metrics.
const meterName = "github.com/myndlens/myndlens-p-sub000"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// STTDuration tracks speech-to-text call latency (feed and finalise).
	STTDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// EvaluationDuration tracks the time from a final fragment to the
	// resulting outcome (question, draft, or refusal).
	EvaluationDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Fragments counts transcript fragments appended to capture states. Use
	// with attribute:
	//   attribute.String("provenance", ...)
	Fragments metric.Int64Counter

	// GuardrailVerdicts counts guardrail decisions. Use with attribute:
	//   attribute.String("verdict", ...)
	GuardrailVerdicts metric.Int64Counter

	// Outcomes counts capture evaluation outcomes. Use with attribute:
	//   attribute.String("outcome", ...)
	Outcomes metric.Int64Counter

	// ExecuteRejections counts rejected execute requests. Use with attribute:
	//   attribute.String("code", ...)
	ExecuteRejections metric.Int64Counter

	// VADEvents counts speech boundary events. Use with attribute:
	//   attribute.String("event", ...)
	VADEvents metric.Int64Counter

	// Migrations counts reconnect migrations. Use with attribute:
	//   attribute.String("result", ...)
	Migrations metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("name", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveConnections tracks the number of authenticated capture sockets.
	ActiveConnections metric.Int64UpDownCounter

	// CaptureStates tracks the number of live conversation states.
	CaptureStates metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) tuned for
// speech vendor latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histogram := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.STTDuration, err = histogram("myndlens.stt.duration",
		"Latency of speech-to-text calls."); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = histogram("myndlens.tts.duration",
		"Latency of text-to-speech synthesis."); err != nil {
		return nil, err
	}
	if met.EvaluationDuration, err = histogram("myndlens.evaluation.duration",
		"Latency from final fragment to capture outcome."); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("myndlens.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("myndlens.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Fragments, err = m.Int64Counter("myndlens.fragments",
		metric.WithDescription("Transcript fragments appended by provenance."),
	); err != nil {
		return nil, err
	}
	if met.GuardrailVerdicts, err = m.Int64Counter("myndlens.guardrail.verdicts",
		metric.WithDescription("Guardrail decisions by verdict."),
	); err != nil {
		return nil, err
	}
	if met.Outcomes, err = m.Int64Counter("myndlens.capture.outcomes",
		metric.WithDescription("Capture evaluation outcomes."),
	); err != nil {
		return nil, err
	}
	if met.ExecuteRejections, err = m.Int64Counter("myndlens.execute.rejections",
		metric.WithDescription("Rejected execute requests by error code."),
	); err != nil {
		return nil, err
	}
	if met.VADEvents, err = m.Int64Counter("myndlens.vad.events",
		metric.WithDescription("Speech boundary events by type."),
	); err != nil {
		return nil, err
	}
	if met.Migrations, err = m.Int64Counter("myndlens.migrations",
		metric.WithDescription("Reconnect migrations by result."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("myndlens.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes."),
	); err != nil {
		return nil, err
	}

	if met.ActiveConnections, err = m.Int64UpDownCounter("myndlens.active_connections",
		metric.WithDescription("Number of authenticated capture connections."),
	); err != nil {
		return nil, err
	}
	if met.CaptureStates, err = m.Int64UpDownCounter("myndlens.capture_states",
		metric.WithDescription("Number of live conversation states."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("myndlens.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest records a provider request with the standard
// attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordFragment records one appended fragment.
func (m *Metrics) RecordFragment(ctx context.Context, provenance string) {
	m.Fragments.Add(ctx, 1, metric.WithAttributes(attribute.String("provenance", provenance)))
}

// RecordVerdict records one guardrail decision.
func (m *Metrics) RecordVerdict(ctx context.Context, verdict string) {
	m.GuardrailVerdicts.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}

// RecordOutcome records one evaluation outcome.
func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	m.Outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordExecuteRejection records a rejected execute request.
func (m *Metrics) RecordExecuteRejection(ctx context.Context, code string) {
	m.ExecuteRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

// RecordVADEvent records a speech boundary event.
func (m *Metrics) RecordVADEvent(ctx context.Context, event string) {
	m.VADEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordMigration records a reconnect attempt; result is "migrated" or "fresh".
func (m *Metrics) RecordMigration(ctx context.Context, result string) {
	m.Migrations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, name, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("name", name),
			attribute.String("to", to),
		),
	)
}
