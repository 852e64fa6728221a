package resilience

import (
	"context"

	"github.com/myndlens/myndlens-p-sub000/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// several TTS backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primary.Name(), cfg),
	}
}

// AddFallback registers an additional TTS provider, tried after the primary.
func (f *TTSFallback) AddFallback(provider tts.Provider) {
	f.group.AddFallback(provider.Name(), provider)
}

// Synthesize converts text using the first backend that succeeds.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (tts.Result, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (tts.Result, error) {
		return p.Synthesize(ctx, text)
	})
}

// Healthy reports whether any backend can serve requests.
func (f *TTSFallback) Healthy() bool {
	for _, e := range f.group.entries {
		if e.value.Healthy() && e.breaker.Allow() {
			return true
		}
	}
	return false
}

// Name returns the primary backend's name.
func (f *TTSFallback) Name() string {
	return f.group.entries[0].name
}

// Names returns the backend names in failover order.
func (f *TTSFallback) Names() []string { return f.group.Names() }
