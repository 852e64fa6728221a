package speech

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/myndlens/myndlens-p-sub000/internal/observe"
	"github.com/myndlens/myndlens-p-sub000/internal/resilience"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/tts"
	ttsmock "github.com/myndlens/myndlens-p-sub000/pkg/provider/tts/mock"
)

// TTS orchestrates the single configured TTS provider. Synthesize never
// fails: when the vendor is unavailable or errors, the result follows the
// mock echo contract.
type TTS struct {
	primary tts.Provider
	chain   *resilience.TTSFallback
	metrics *observe.Metrics
}

// TTSOption is a functional option for [NewTTS].
type TTSOption func(*ttsOptions)

type ttsOptions struct {
	metrics *observe.Metrics
	breaker resilience.CircuitBreakerConfig
}

// WithTTSMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithTTSMetrics(m *observe.Metrics) TTSOption {
	return func(o *ttsOptions) { o.metrics = m }
}

// WithTTSBreaker overrides the circuit breaker tuning.
func WithTTSBreaker(cfg resilience.CircuitBreakerConfig) TTSOption {
	return func(o *ttsOptions) { o.breaker = cfg }
}

// NewTTS wraps p. Unless p is itself the echo double, the echo double is
// registered behind it as the fallback.
func NewTTS(p tts.Provider, opts ...TTSOption) *TTS {
	var o ttsOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	o.breaker.OnStateChange = breakerRecorder(o.metrics)

	chain := resilience.NewTTSFallback(p, resilience.FallbackConfig{CircuitBreaker: o.breaker})
	if _, isEcho := p.(*ttsmock.Provider); !isEcho {
		chain.AddFallback(ttsmock.New())
	}
	return &TTS{primary: p, chain: chain, metrics: o.metrics}
}

// Name returns the configured provider's name.
func (t *TTS) Name() string { return t.primary.Name() }

// Healthy reports whether the configured provider itself is usable. The
// orchestrator still answers through the echo fallback when it is not.
func (t *TTS) Healthy() bool { return t.primary.Healthy() }

// Synthesize converts text to audio.
func (t *TTS) Synthesize(ctx context.Context, text string) tts.Result {
	start := time.Now()
	name := t.primary.Name()

	res, err := t.chain.Synthesize(ctx, text)
	latency := time.Since(start)
	t.metrics.TTSDuration.Record(ctx, latency.Seconds(),
		metric.WithAttributes(observe.Attr("provider", name)))

	if err != nil {
		t.metrics.RecordProviderError(ctx, name, "tts")
		t.metrics.RecordProviderRequest(ctx, name, "tts", "error")
		slog.Warn("tts synthesis failed, echoing text", "provider", name, "error", err)
		return ttsmock.Echo(text, latency)
	}
	status := "ok"
	if res.IsMock && !t.isEchoPrimary() {
		status = "fallback"
	}
	t.metrics.RecordProviderRequest(ctx, name, "tts", status)
	if res.Latency == 0 {
		res.Latency = latency
	}
	return res
}

func (t *TTS) isEchoPrimary() bool {
	_, ok := t.primary.(*ttsmock.Provider)
	return ok
}
