// Package speech holds the STT and TTS orchestrators that sit between the
// capture pipeline and the configured speech vendors.
//
// Each orchestrator wraps exactly one provider, resolved once at startup from
// the config registry. Vendor failures never reach the caller: the STT
// orchestrator degrades to "no fragment" and the TTS orchestrator degrades to
// the mock echo contract. Failures are not retried; a circuit breaker stops
// calling a vendor that keeps failing until its reset timeout passes.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/myndlens/myndlens-p-sub000/internal/observe"
	"github.com/myndlens/myndlens-p-sub000/internal/resilience"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/stt"
	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

// DefaultEndTimeout bounds how long EndStream waits for a vendor final.
const DefaultEndTimeout = 3 * time.Second

// STT orchestrates the single configured STT provider. It is safe for
// concurrent use across sessions.
type STT struct {
	provider   stt.Provider
	breaker    *resilience.CircuitBreaker
	metrics    *observe.Metrics
	streamCfg  stt.StreamConfig
	endTimeout time.Duration
	breakerCfg resilience.CircuitBreakerConfig
}

// STTOption is a functional option for [NewSTT].
type STTOption func(*STT)

// WithSTTMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithSTTMetrics(m *observe.Metrics) STTOption {
	return func(s *STT) { s.metrics = m }
}

// WithStreamConfig sets the config passed to every StartStream call.
func WithStreamConfig(cfg stt.StreamConfig) STTOption {
	return func(s *STT) { s.streamCfg = cfg }
}

// WithEndTimeout bounds EndStream. Non-positive values keep the default.
func WithEndTimeout(d time.Duration) STTOption {
	return func(s *STT) {
		if d > 0 {
			s.endTimeout = d
		}
	}
}

// WithSTTBreaker overrides the circuit breaker tuning.
func WithSTTBreaker(cfg resilience.CircuitBreakerConfig) STTOption {
	return func(s *STT) { s.breakerCfg = cfg }
}

// NewSTT wraps p.
func NewSTT(p stt.Provider, opts ...STTOption) *STT {
	s := &STT{provider: p, endTimeout: DefaultEndTimeout}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.breakerCfg.Name = "stt:" + p.Name()
	s.breakerCfg.OnStateChange = breakerRecorder(s.metrics)
	s.breaker = resilience.NewCircuitBreaker(s.breakerCfg)
	return s
}

// Name returns the wrapped provider's name.
func (s *STT) Name() string { return s.provider.Name() }

// Healthy reports whether the provider is usable and its breaker admits calls.
func (s *STT) Healthy() bool {
	return s.provider.Healthy() && s.breaker.Allow()
}

// StartStream opens a stream for sessionID. It reports false if the stream
// could not be opened; the caller keeps going without transcription.
func (s *STT) StartStream(ctx context.Context, sessionID string) bool {
	_, ok := s.call(ctx, sessionID, "start", func() (*types.Transcript, error) {
		return nil, s.provider.StartStream(ctx, sessionID, s.streamCfg)
	})
	return ok
}

// FeedAudio delivers one chunk and returns a partial fragment, or nil when
// none is ready or the provider failed.
func (s *STT) FeedAudio(ctx context.Context, sessionID string, chunk []byte, seq int64) *types.Transcript {
	t, _ := s.call(ctx, sessionID, "feed", func() (*types.Transcript, error) {
		return s.provider.FeedAudio(ctx, sessionID, chunk, seq)
	})
	return t
}

// EndStream closes the stream and returns the final fragment, or nil when no
// audio was fed or the provider failed.
func (s *STT) EndStream(ctx context.Context, sessionID string) *types.Transcript {
	ctx, cancel := context.WithTimeout(ctx, s.endTimeout)
	defer cancel()
	t, ok := s.call(ctx, sessionID, "end", func() (*types.Transcript, error) {
		return s.provider.EndStream(ctx, sessionID)
	})
	if !ok {
		s.provider.CancelStream(sessionID)
		return nil
	}
	if t != nil {
		t.IsFinal = true
	}
	return t
}

// CancelStream releases the provider stream for sessionID, if any.
func (s *STT) CancelStream(sessionID string) {
	s.provider.CancelStream(sessionID)
}

// call runs fn through the breaker and absorbs any failure.
func (s *STT) call(ctx context.Context, sessionID, op string, fn func() (*types.Transcript, error)) (*types.Transcript, bool) {
	name := s.provider.Name()
	if !s.provider.Healthy() {
		slog.Debug("stt provider unhealthy, skipping call",
			"provider", name, "op", op, "session_id", sessionID)
		return nil, false
	}

	start := time.Now()
	var out *types.Transcript
	err := s.breaker.Execute(func() error {
		var err error
		out, err = fn()
		return err
	})
	s.metrics.STTDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", name), observe.Attr("op", op)))

	if err != nil {
		status := "error"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			status = "circuit_open"
		} else {
			s.metrics.RecordProviderError(ctx, name, "stt")
		}
		s.metrics.RecordProviderRequest(ctx, name, "stt", status)
		observe.Logger(ctx).Warn("stt call failed, continuing without transcript",
			"provider", name, "op", op, "session_id", sessionID, "error", err)
		return nil, false
	}
	s.metrics.RecordProviderRequest(ctx, name, "stt", "ok")
	return out, true
}

// breakerRecorder reports breaker transitions to m.
func breakerRecorder(m *observe.Metrics) func(name string, from, to resilience.State) {
	return func(name string, _, to resilience.State) {
		m.RecordBreakerTransition(context.Background(), name, to.String())
	}
}
