// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a streaming transcription service (e.g., Deepgram or
// Google Speech-to-Text) behind a uniform, session-keyed contract. A capture
// session opens a stream, feeds it audio chunks one at a time, and closes it
// to obtain the authoritative final transcript. Partial transcripts are
// returned opportunistically from FeedAudio so the client can be updated
// without waiting for the utterance to end.
//
// Implementations must be safe for concurrent use across sessions. Calls for
// the same session ID are serialised by the caller.
package stt

import (
	"context"
	"errors"

	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

var (
	// ErrUnavailable is returned when the provider failed to initialise or
	// is otherwise unable to serve requests.
	ErrUnavailable = errors.New("stt: provider unavailable")

	// ErrNoStream is returned when a call references a session with no open stream.
	ErrNoStream = errors.New("stt: no open stream for session")
)

// StreamConfig describes the audio format and recognition hints for a new
// stream. Zero values fall back to provider defaults.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a transcription stream for sessionID. Starting a
	// stream that is already open is a no-op.
	StartStream(ctx context.Context, sessionID string, cfg StreamConfig) error

	// FeedAudio delivers one audio chunk. It returns a partial transcript when
	// one has become available since the previous call, or nil.
	FeedAudio(ctx context.Context, sessionID string, chunk []byte, seq int64) (*types.Transcript, error)

	// EndStream flushes and closes the stream, returning the final transcript
	// for everything fed since StartStream. It returns nil when no audio was fed.
	EndStream(ctx context.Context, sessionID string) (*types.Transcript, error)

	// CancelStream tears the stream down without producing a transcript.
	// Cancelling an unknown session is a no-op.
	CancelStream(sessionID string)

	// Healthy reports whether the provider can currently serve requests.
	// It never blocks on the network.
	Healthy() bool

	// Name returns the registry name of the provider (e.g., "mock", "deepgram").
	Name() string
}
