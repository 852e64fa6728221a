// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine turns per-frame audio energy into speech-start and speech-end
// events. Each session maintains its own detection state so that multiple
// concurrent audio streams can be processed independently.
//
// VAD is synchronous: ProcessFrame returns immediately with a detection
// result and never blocks, making it suitable for the capture loop that gates
// utterance boundaries.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

import (
	"errors"
	"time"

	"github.com/myndlens/myndlens-p-sub000/pkg/audio"
	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

const (
	// DefaultThreshold is the RMS energy above which a frame counts as speech.
	DefaultThreshold = 0.015

	// DefaultSilenceDuration is how long energy must stay at or below the
	// threshold before an active speech segment ends.
	DefaultSilenceDuration = 1200 * time.Millisecond

	// DefaultMinSpeechDuration is the shortest speech segment that produces a
	// speech-end event.
	DefaultMinSpeechDuration = 300 * time.Millisecond
)

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("vad: session closed")

// Config holds the parameters for a VAD session.
type Config struct {
	// Threshold is the RMS energy (0.0-1.0) a frame must exceed to count as speech.
	Threshold float64

	// SilenceDuration is the sub-threshold span that ends a speech segment.
	SilenceDuration time.Duration

	// MinSpeechDuration is the minimum true speech length, measured from
	// speech start to the first silent frame, required to emit VADSpeechEnd.
	MinSpeechDuration time.Duration

	// Encoding is the sample layout of frames passed to ProcessFrame.
	Encoding audio.Encoding
}

// DefaultConfig returns the standard thresholds for pcm16 input.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		SilenceDuration:   DefaultSilenceDuration,
		MinSpeechDuration: DefaultMinSpeechDuration,
		Encoding:          audio.EncodingPCM16,
	}
}

// SessionHandle represents an active VAD session for a single audio stream. It is
// an interface so that test code can supply mock implementations without a live
// engine. Reset clears detection state without closing the session.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and returns the detection
	// result. The frame's CapturedAt timestamp drives all timing decisions.
	ProcessFrame(frame types.AudioFrame) (types.VADEvent, error)

	// Reset zeroes the measured energy and returns the session to silence
	// with nothing pending.
	Reset()

	// Close releases all resources associated with the session. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may call
// NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration.
	// Returns an error if the configuration is invalid.
	NewSession(cfg Config) (SessionHandle, error)
}
