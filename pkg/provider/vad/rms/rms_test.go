package rms_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/myndlens/myndlens-p-sub000/pkg/audio"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/vad"
	"github.com/myndlens/myndlens-p-sub000/pkg/provider/vad/rms"
	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T) *rms.Session {
	t.Helper()
	s, err := rms.NewSession(vad.DefaultConfig())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

// feed drives s with energy at step intervals over [from, to) and returns
// every event emitted, keyed by offset.
func feed(s *rms.Session, energy float64, from, to, step time.Duration) map[time.Duration]types.VADEventType {
	events := make(map[time.Duration]types.VADEventType)
	for off := from; off < to; off += step {
		events[off] = s.ProcessEnergy(energy, epoch.Add(off)).Type
	}
	return events
}

func countOf(events map[time.Duration]types.VADEventType, want types.VADEventType) int {
	n := 0
	for _, ev := range events {
		if ev == want {
			n++
		}
	}
	return n
}

func TestSession_QuietNeverStarts(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	events := feed(s, 0.005, 0, 10*time.Second, 20*time.Millisecond)
	if n := countOf(events, types.VADSpeechStart); n != 0 {
		t.Errorf("speech starts = %d, want 0", n)
	}
	if s.Speaking() {
		t.Error("Speaking() = true, want false")
	}
}

func TestSession_StartAndEnd(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	if ev := s.ProcessEnergy(0.025, epoch); ev.Type != types.VADSpeechStart {
		t.Fatalf("first loud frame: got %v, want speech_start", ev.Type)
	}
	feed(s, 0.025, 100*time.Millisecond, 500*time.Millisecond, 100*time.Millisecond)

	// Silence begins at 500ms. Nothing ends before 1700ms.
	quiet := feed(s, 0.003, 500*time.Millisecond, 1700*time.Millisecond, 100*time.Millisecond)
	if n := countOf(quiet, types.VADSpeechEnd); n != 0 {
		t.Fatalf("speech ended after %d quiet frames, before the silence window", n)
	}
	if ev := s.ProcessEnergy(0.003, epoch.Add(1700*time.Millisecond)); ev.Type != types.VADSpeechEnd {
		t.Errorf("at 1200ms of silence: got %v, want speech_end", ev.Type)
	}
	if s.Speaking() {
		t.Error("Speaking() = true after speech_end")
	}
}

func TestSession_ShortSpeechDiscarded(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	s.ProcessEnergy(0.025, epoch)
	s.ProcessEnergy(0.025, epoch.Add(50*time.Millisecond))
	events := feed(s, 0.003, 100*time.Millisecond, 1600*time.Millisecond, 50*time.Millisecond)
	if n := countOf(events, types.VADSpeechEnd); n != 0 {
		t.Errorf("speech_end fired %d times for 100ms of speech", n)
	}
	if s.Speaking() {
		t.Error("Speaking() = true after silence window")
	}
}

func TestSession_LoudFrameCancelsPendingSilence(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	s.ProcessEnergy(0.05, epoch)
	s.ProcessEnergy(0.001, epoch.Add(400*time.Millisecond))
	s.ProcessEnergy(0.05, epoch.Add(1000*time.Millisecond))
	if ev := s.ProcessEnergy(0.001, epoch.Add(1700*time.Millisecond)); ev.Type != types.VADSpeechContinue {
		t.Errorf("got %v, want speech_continue while the new silence span is short", ev.Type)
	}
	if ev := s.ProcessEnergy(0.001, epoch.Add(2900*time.Millisecond)); ev.Type != types.VADSpeechEnd {
		t.Errorf("got %v, want speech_end", ev.Type)
	}
}

func TestSession_ThresholdIsExclusive(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	if ev := s.ProcessEnergy(vad.DefaultThreshold, epoch); ev.Type != types.VADSilence {
		t.Errorf("energy at threshold: got %v, want silence", ev.Type)
	}
}

func TestSession_Reset(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	s.ProcessEnergy(0.3, epoch)
	s.ProcessEnergy(0.001, epoch.Add(time.Second))
	s.Reset()
	if s.Speaking() {
		t.Error("Speaking() = true after Reset")
	}
	if s.Energy() != 0 {
		t.Errorf("Energy() = %v after Reset, want 0", s.Energy())
	}
	// No pending silence survives Reset: a fresh start is reported.
	if ev := s.ProcessEnergy(0.3, epoch.Add(5*time.Second)); ev.Type != types.VADSpeechStart {
		t.Errorf("after Reset: got %v, want speech_start", ev.Type)
	}
}

func TestSession_ProcessFrame(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	loud := make([]byte, 320)
	for i := 0; i+1 < len(loud); i += 2 {
		binary.LittleEndian.PutUint16(loud[i:], uint16(int16(8000)))
	}
	ev, err := s.ProcessFrame(types.AudioFrame{Data: loud, CapturedAt: epoch})
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != types.VADSpeechStart {
		t.Errorf("got %v, want speech_start", ev.Type)
	}
	if ev.Energy <= vad.DefaultThreshold {
		t.Errorf("Energy = %v, want above threshold", ev.Energy)
	}

	_ = s.Close()
	if _, err := s.ProcessFrame(types.AudioFrame{Data: loud, CapturedAt: epoch}); !errors.Is(err, vad.ErrSessionClosed) {
		t.Errorf("after Close: got %v, want ErrSessionClosed", err)
	}
}

func TestEngine_U8Encoding(t *testing.T) {
	t.Parallel()

	cfg := vad.DefaultConfig()
	cfg.Encoding = audio.EncodingU8
	h, err := rms.New().NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	ev, err := h.ProcessFrame(types.AudioFrame{Data: bytes.Repeat([]byte{0xFF}, 64), CapturedAt: epoch})
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Energy <= 0.9 {
		t.Errorf("Energy = %v, want > 0.9", ev.Energy)
	}
}

func TestNewSession_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  vad.Config
	}{
		{"threshold too high", vad.Config{Threshold: 1.5}},
		{"negative silence", vad.Config{SilenceDuration: -time.Second}},
		{"bad encoding", vad.Config{Encoding: "opus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := rms.NewSession(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
