// Package mock provides the echo TTS provider used in development, in tests,
// and as the fallback behind real vendors.
//
// Provider returns the input text verbatim with no audio and format "text".
// Calls are recorded, and a failure can be injected with SynthesizeErr.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/myndlens/myndlens-p-sub000/pkg/provider/tts"
)

// Provider is the echo implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeErr, if non-nil, is returned by every Synthesize call.
	SynthesizeErr error

	// Unhealthy makes Healthy report false.
	Unhealthy bool

	// SynthesizeCalls records the text of every Synthesize call.
	SynthesizeCalls []string
}

// New returns a ready Provider.
func New() *Provider { return &Provider{} }

// Name returns "mock".
func (p *Provider) Name() string { return "mock" }

// Synthesize echoes text.
func (p *Provider) Synthesize(_ context.Context, text string) (tts.Result, error) {
	start := time.Now()
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, text)
	err := p.SynthesizeErr
	p.mu.Unlock()
	if err != nil {
		return tts.Result{}, err
	}
	return Echo(text, time.Since(start)), nil
}

// Echo builds the mock-contract result for text.
func Echo(text string, latency time.Duration) tts.Result {
	return tts.Result{
		Text:    text,
		Audio:   []byte{},
		Format:  tts.FormatText,
		IsMock:  true,
		Latency: latency,
	}
}

// Healthy reports !Unhealthy.
func (p *Provider) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.Unhealthy
}

// Calls returns a copy of the recorded Synthesize texts. Thread-safe.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.SynthesizeCalls...)
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
