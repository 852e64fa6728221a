package vad_test

import (
	"bytes"
	"testing"

	"github.com/myndlens/myndlens-p-sub000/pkg/provider/vad"
)

func TestRMS_Empty(t *testing.T) {
	t.Parallel()

	if got := vad.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	if got := vad.RMSBytes([]byte{}); got != 0 {
		t.Errorf("RMSBytes(empty) = %v, want 0", got)
	}
}

func TestRMS_Constant(t *testing.T) {
	t.Parallel()

	if got := vad.RMS([]float64{0.5, 0.5, 0.5, 0.5}); got != 0.5 {
		t.Errorf("RMS = %v, want 0.5", got)
	}
}

func TestRMSBytes_MaxAmplitude(t *testing.T) {
	t.Parallel()

	got := vad.RMSBytes(bytes.Repeat([]byte{0xFF}, 512))
	if got <= 0.9 {
		t.Errorf("RMSBytes(0xFF...) = %v, want > 0.9", got)
	}
	if got > 1 {
		t.Errorf("RMSBytes(0xFF...) = %v, want <= 1", got)
	}
}

func TestRMSBytes_Monotonic(t *testing.T) {
	t.Parallel()

	prev := -1.0
	for amp := 0; amp <= 255; amp++ {
		got := vad.RMSBytes(bytes.Repeat([]byte{byte(amp)}, 64))
		if got < 0 {
			t.Fatalf("amplitude %d: RMS %v is negative", amp, got)
		}
		if got < prev {
			t.Fatalf("amplitude %d: RMS %v decreased from %v", amp, got, prev)
		}
		prev = got
	}
}
