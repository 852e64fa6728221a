// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns a complete reply text into audio in one call. The
// capture pipeline uses it for refusals and clarifying questions, which are
// short and known up front, so there is no streaming input surface.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"time"
)

// FormatText is the format reported when no audio was produced and the
// client should display Result.Text instead.
const FormatText = "text"

// ErrUnavailable is returned when the provider failed to initialise.
var ErrUnavailable = errors.New("tts: provider unavailable")

// Result is the outcome of a synthesis call.
type Result struct {
	// Text is the text that was synthesised.
	Text string

	// Audio holds the encoded audio. Empty when Format is [FormatText].
	Audio []byte

	// Format names the audio encoding (e.g., "mp3_44100_128", "pcm_16000").
	Format string

	// IsMock is true when the result came from the echo double.
	IsMock bool

	// Latency is the wall time spent producing the result.
	Latency time.Duration
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into audio.
	Synthesize(ctx context.Context, text string) (Result, error)

	// Healthy reports whether the provider can currently serve requests.
	// It never blocks on the network.
	Healthy() bool

	// Name returns the registry name of the provider (e.g., "mock", "elevenlabs").
	Name() string
}
