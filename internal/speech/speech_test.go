package speech_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/myndlens/myndlens-p-sub000/internal/observe"
	"github.com/myndlens/myndlens-p-sub000/internal/resilience"
	"github.com/myndlens/myndlens-p-sub000/internal/speech"
	sttmock "github.com/myndlens/myndlens-p-sub000/pkg/provider/stt/mock"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/tts"
	ttsmock "github.com/myndlens/myndlens-p-sub000/pkg/provider/tts/mock"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestSTT_PassesThroughMockTranscripts(t *testing.T) {
	t.Parallel()

	p := sttmock.New()
	s := speech.NewSTT(p, speech.WithSTTMetrics(testMetrics(t)))
	ctx := context.Background()

	if !s.StartStream(ctx, "sess-1") {
		t.Fatal("StartStream() = false, want true")
	}
	var partials []string
	for i := range 8 {
		if tr := s.FeedAudio(ctx, "sess-1", []byte{1, 2}, int64(i)); tr != nil {
			partials = append(partials, tr.Text)
		}
	}
	if len(partials) != 2 || partials[0] != "Hello" {
		t.Fatalf("partials = %v, want [Hello I need to]", partials)
	}

	final := s.EndStream(ctx, "sess-1")
	if final == nil {
		t.Fatal("EndStream() = nil, want final")
	}
	if !final.IsFinal {
		t.Error("final.IsFinal = false, want true")
	}
	for _, p := range partials {
		if !strings.Contains(final.Text, p) {
			t.Errorf("final %q missing partial %q", final.Text, p)
		}
	}
}

func TestSTT_EndStreamWithoutAudio(t *testing.T) {
	t.Parallel()

	s := speech.NewSTT(sttmock.New(), speech.WithSTTMetrics(testMetrics(t)))
	ctx := context.Background()
	s.StartStream(ctx, "sess-1")

	if got := s.EndStream(ctx, "sess-1"); got != nil {
		t.Errorf("EndStream() = %+v, want nil", got)
	}
}

func TestSTT_AbsorbsProviderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(p *sttmock.Provider)
		run   func(s *speech.STT) bool
	}{
		{
			name:  "start",
			setup: func(p *sttmock.Provider) { p.StartErr = errors.New("auth failed") },
			run:   func(s *speech.STT) bool { return !s.StartStream(context.Background(), "s") },
		},
		{
			name:  "feed",
			setup: func(p *sttmock.Provider) { p.FeedErr = errors.New("socket closed") },
			run: func(s *speech.STT) bool {
				return s.FeedAudio(context.Background(), "s", []byte{0}, 0) == nil
			},
		},
		{
			name:  "end",
			setup: func(p *sttmock.Provider) { p.EndErr = errors.New("timeout") },
			run:   func(s *speech.STT) bool { return s.EndStream(context.Background(), "s") == nil },
		},
		{
			name:  "unhealthy",
			setup: func(p *sttmock.Provider) { p.Unhealthy = true },
			run: func(s *speech.STT) bool {
				return s.FeedAudio(context.Background(), "s", []byte{0}, 0) == nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := sttmock.New()
			tt.setup(p)
			s := speech.NewSTT(p, speech.WithSTTMetrics(testMetrics(t)))
			if !tt.run(s) {
				t.Error("orchestrator did not degrade to the safe default")
			}
		})
	}
}

func TestSTT_UnhealthySkipsProvider(t *testing.T) {
	t.Parallel()

	p := sttmock.New()
	p.Unhealthy = true
	s := speech.NewSTT(p, speech.WithSTTMetrics(testMetrics(t)))

	s.FeedAudio(context.Background(), "s", []byte{0}, 0)
	if len(p.FeedCalls) != 0 {
		t.Errorf("FeedCalls = %d, want 0 for unhealthy provider", len(p.FeedCalls))
	}
	if s.Healthy() {
		t.Error("Healthy() = true, want false")
	}
}

func TestSTT_BreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	p := sttmock.New()
	p.FeedErr = errors.New("down")
	s := speech.NewSTT(p,
		speech.WithSTTMetrics(testMetrics(t)),
		speech.WithSTTBreaker(resilience.CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}),
	)
	ctx := context.Background()
	for i := range 5 {
		s.FeedAudio(ctx, "s", []byte{0}, int64(i))
	}
	if len(p.FeedCalls) != 2 {
		t.Errorf("FeedCalls = %d, want 2 (breaker should stop further calls)", len(p.FeedCalls))
	}
	if s.Healthy() {
		t.Error("Healthy() = true with open breaker, want false")
	}
}

func TestSTT_EndStreamFailureCancelsStream(t *testing.T) {
	t.Parallel()

	p := sttmock.New()
	p.EndErr = errors.New("boom")
	s := speech.NewSTT(p, speech.WithSTTMetrics(testMetrics(t)))
	s.EndStream(context.Background(), "sess-9")

	if len(p.CancelCalls) != 1 || p.CancelCalls[0] != "sess-9" {
		t.Errorf("CancelCalls = %v, want [sess-9]", p.CancelCalls)
	}
}

func TestTTS_MockEchoes(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 10000)
	tests := []string{"", "Who is this for?", long}
	s := speech.NewTTS(ttsmock.New(), speech.WithTTSMetrics(testMetrics(t)))
	for _, text := range tests {
		res := s.Synthesize(context.Background(), text)
		if res.Text != text {
			t.Errorf("Text len = %d, want %d", len(res.Text), len(text))
		}
		if !res.IsMock || res.Format != tts.FormatText || len(res.Audio) != 0 {
			t.Errorf("result = {IsMock:%v Format:%q Audio:%d}, want mock contract", res.IsMock, res.Format, len(res.Audio))
		}
	}
}

// vendor is a scripted non-mock TTS provider.
type vendor struct {
	err     error
	healthy bool
}

func (v *vendor) Synthesize(_ context.Context, text string) (tts.Result, error) {
	if v.err != nil {
		return tts.Result{}, v.err
	}
	return tts.Result{Text: text, Audio: []byte{0xff, 0xfb}, Format: "mp3_44100_128"}, nil
}
func (v *vendor) Healthy() bool { return v.healthy }
func (v *vendor) Name() string { return "vendor" }

func TestTTS_VendorSuccess(t *testing.T) {
	t.Parallel()

	s := speech.NewTTS(&vendor{healthy: true}, speech.WithTTSMetrics(testMetrics(t)))
	res := s.Synthesize(context.Background(), "hello")
	if res.IsMock {
		t.Error("IsMock = true, want false for vendor success")
	}
	if len(res.Audio) == 0 || res.Format != "mp3_44100_128" {
		t.Errorf("result = %+v, want vendor audio", res)
	}
}

func TestTTS_VendorFallsBackToEcho(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    *vendor
	}{
		{"call error", &vendor{healthy: true, err: errors.New("quota")}},
		{"init failure", &vendor{healthy: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := speech.NewTTS(tt.v, speech.WithTTSMetrics(testMetrics(t)))
			res := s.Synthesize(context.Background(), "I can't help with that.")
			if !res.IsMock || res.Text != "I can't help with that." || res.Format != tts.FormatText {
				t.Errorf("result = %+v, want echo fallback", res)
			}
		})
	}
}

func TestTTS_AllFailEchoes(t *testing.T) {
	t.Parallel()

	p := ttsmock.New()
	p.SynthesizeErr = errors.New("injected")
	s := speech.NewTTS(p, speech.WithTTSMetrics(testMetrics(t)))

	res := s.Synthesize(context.Background(), "x")
	if !res.IsMock || res.Text != "x" {
		t.Errorf("result = %+v, want echo", res)
	}
}
