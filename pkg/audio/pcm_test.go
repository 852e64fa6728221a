package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/myndlens/myndlens-p-sub000/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestNormalizePCM16(t *testing.T) {
	t.Parallel()

	got := audio.NormalizePCM16(samplesToBytes([]int16{0, 16384, -16384, -32768, 32767}))
	want := []float64{0, 0.5, 0.5, 1, 32767.0 / 32768}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNormalize_OddPCM16(t *testing.T) {
	t.Parallel()

	got, err := audio.Normalize([]byte{0, 0x40, 0x7f}, audio.EncodingPCM16)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestNormalize_U8(t *testing.T) {
	t.Parallel()

	got, err := audio.Normalize([]byte{0, 255}, audio.EncodingU8)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got[0] != 0 || got[1] != 1 {
		t.Errorf("got %v, want [0 1]", got)
	}
}

func TestNormalize_Unsupported(t *testing.T) {
	t.Parallel()

	if _, err := audio.Normalize([]byte{1}, "opus"); err == nil {
		t.Error("expected error for unsupported encoding")
	}
}
