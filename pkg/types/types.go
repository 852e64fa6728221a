// Package types defines the shared types used across all MyndLens packages.
//
// These types form the lingua franca between providers, the capture pipeline,
// and the transport. Each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// AudioFrame represents a single validated chunk of audio flowing through the
// capture pipeline. Frames are ephemeral: they are produced by the audio
// validator, consumed by VAD and STT, and never persisted.
type AudioFrame struct {
	// Data is the decoded audio payload. Encoding and sample rate are
	// determined by the capture configuration.
	Data []byte

	// Seq is the client-assigned monotonic sequence number.
	Seq int64

	// CapturedAt marks when the frame was accepted by the server.
	CapturedAt time.Time

	// Duration is an estimate of the audio length contained in Data.
	Duration time.Duration
}

// Provenance identifies where a transcript fragment came from.
type Provenance string

const (
	// ProvenanceProvider marks text produced by a real STT vendor.
	ProvenanceProvider Provenance = "provider"

	// ProvenanceSynthetic marks text produced by a deterministic test double.
	ProvenanceSynthetic Provenance = "synthetic"

	// ProvenanceTyped marks text the user typed instead of speaking.
	ProvenanceTyped Provenance = "typed"
)

// Transcript represents a speech-to-text result (a transcript fragment).
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed or typed content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0-1.0). May be zero if the provider
	// does not report confidence.
	Confidence float64

	// Provenance records which kind of source produced the text.
	Provenance Provenance

	// SpanIDs lists the audio sequence numbers that contributed to this fragment.
	SpanIDs []int64

	// Timestamp marks when the fragment was produced.
	Timestamp time.Time
}

// VADEvent represents a voice activity detection result for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Energy is the RMS energy (0.0-1.0) measured for the frame.
	Energy float64
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)

// String returns the human-readable name of the event type.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	default:
		return "unknown"
	}
}
