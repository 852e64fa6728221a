// Package rms provides an energy-threshold VAD engine.
//
// Each frame's RMS energy is compared against a fixed threshold. A session
// moves SILENT→SPEAKING on the first frame above the threshold and reports
// [types.VADSpeechStart] immediately. It moves back to SILENT once energy has
// stayed at or below the threshold for the configured silence duration; the
// transition reports [types.VADSpeechEnd] only when the speech segment lasted
// at least the configured minimum, and [types.VADSilence] otherwise.
//
// Timing is driven entirely by frame timestamps, so sessions hold no timers.
package rms

import (
	"fmt"
	"sync"
	"time"

	"github.com/myndlens/myndlens-p-sub000/pkg/audio"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/vad"
	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

// Engine creates energy-threshold VAD sessions. It is stateless and safe for
// concurrent use.
type Engine struct{}

// New returns an Engine.
func New() *Engine { return &Engine{} }

// NewSession validates cfg, filling zero values with the package defaults.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	return NewSession(cfg)
}

// NewSession returns a concrete Session for callers that want ProcessEnergy.
func NewSession(cfg vad.Config) (*Session, error) {
	def := vad.DefaultConfig()
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.SilenceDuration == 0 {
		cfg.SilenceDuration = def.SilenceDuration
	}
	if cfg.MinSpeechDuration == 0 {
		cfg.MinSpeechDuration = def.MinSpeechDuration
	}
	if cfg.Encoding == "" {
		cfg.Encoding = def.Encoding
	}
	if cfg.Threshold < 0 || cfg.Threshold >= 1 {
		return nil, fmt.Errorf("rms: threshold %v out of range [0, 1)", cfg.Threshold)
	}
	if cfg.SilenceDuration < 0 || cfg.MinSpeechDuration < 0 {
		return nil, fmt.Errorf("rms: durations must not be negative")
	}
	if !cfg.Encoding.IsValid() {
		return nil, fmt.Errorf("rms: unsupported encoding %q", cfg.Encoding)
	}
	return &Session{cfg: cfg}, nil
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

type state int

const (
	silent state = iota
	speaking
)

// Session is a single-stream energy detector. Methods are safe for
// concurrent use.
type Session struct {
	cfg vad.Config

	mu           sync.Mutex
	state        state
	energy       float64
	speechStart  time.Time
	silenceStart time.Time // zero while energy is above threshold
	closed       bool
}

// ProcessFrame measures the frame's energy and advances the state machine
// using frame.CapturedAt.
func (s *Session) ProcessFrame(frame types.AudioFrame) (types.VADEvent, error) {
	samples, err := audio.Normalize(frame.Data, s.cfg.Encoding)
	if err != nil {
		return types.VADEvent{}, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return types.VADEvent{}, vad.ErrSessionClosed
	}
	return s.ProcessEnergy(vad.RMS(samples), frame.CapturedAt), nil
}

// ProcessEnergy advances the state machine with a pre-computed energy value
// observed at time at.
func (s *Session) ProcessEnergy(energy float64, at time.Time) types.VADEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.energy = energy
	loud := energy > s.cfg.Threshold

	switch s.state {
	case silent:
		if !loud {
			return types.VADEvent{Type: types.VADSilence, Energy: energy}
		}
		s.state = speaking
		s.speechStart = at
		s.silenceStart = time.Time{}
		return types.VADEvent{Type: types.VADSpeechStart, Energy: energy}

	default:
		if loud {
			s.silenceStart = time.Time{}
			return types.VADEvent{Type: types.VADSpeechContinue, Energy: energy}
		}
		if s.silenceStart.IsZero() {
			s.silenceStart = at
		}
		if at.Sub(s.silenceStart) < s.cfg.SilenceDuration {
			return types.VADEvent{Type: types.VADSpeechContinue, Energy: energy}
		}
		spoke := s.silenceStart.Sub(s.speechStart)
		s.state = silent
		s.speechStart = time.Time{}
		s.silenceStart = time.Time{}
		if spoke < s.cfg.MinSpeechDuration {
			return types.VADEvent{Type: types.VADSilence, Energy: energy}
		}
		return types.VADEvent{Type: types.VADSpeechEnd, Energy: energy}
	}
}

// Speaking reports whether the session is inside a speech segment.
func (s *Session) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == speaking
}

// Energy returns the energy of the most recent frame.
func (s *Session) Energy() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.energy
}

// Reset zeroes energy and returns to SILENT with nothing pending.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = silent
	s.energy = 0
	s.speechStart = time.Time{}
	s.silenceStart = time.Time{}
}

// Close marks the session closed. Subsequent ProcessFrame calls fail.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)
