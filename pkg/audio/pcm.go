// Package audio holds PCM helpers and the inbound audio chunk validator.
package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Encoding names the sample layout of inbound audio payloads.
type Encoding string

const (
	// EncodingPCM16 is signed 16-bit little-endian mono PCM.
	EncodingPCM16 Encoding = "pcm16"

	// EncodingU8 treats every byte as an unsigned amplitude where 0xFF is the
	// loudest possible sample.
	EncodingU8 Encoding = "u8"
)

// IsValid reports whether e is a supported encoding.
func (e Encoding) IsValid() bool {
	switch e {
	case EncodingPCM16, EncodingU8:
		return true
	}
	return false
}

// BytesPerSample returns the width of a single sample.
func (e Encoding) BytesPerSample() int {
	if e == EncodingU8 {
		return 1
	}
	return 2
}

var warnedOddPCM sync.Once

// Normalize decodes data into amplitude magnitudes on a 0..1 scale.
// For [EncodingPCM16] a trailing odd byte is ignored.
func Normalize(data []byte, enc Encoding) ([]float64, error) {
	switch enc {
	case EncodingU8:
		return NormalizeU8(data), nil
	case EncodingPCM16, "":
		if len(data)%2 != 0 {
			warnedOddPCM.Do(func() {
				slog.Warn("audio: odd byte count in pcm16 data, ignoring trailing byte", "bytes", len(data))
			})
		}
		return NormalizePCM16(data), nil
	default:
		return nil, fmt.Errorf("audio: unsupported encoding %q", enc)
	}
}

// NormalizePCM16 converts little-endian int16 samples to magnitudes in 0..1.
func NormalizePCM16(pcm []byte) []float64 {
	out := make([]float64, len(pcm)/2)
	for i := range out {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		v := float64(s)
		if v < 0 {
			v = -v
		}
		out[i] = v / 32768
	}
	return out
}

// NormalizeU8 converts amplitude bytes to magnitudes in 0..1.
func NormalizeU8(b []byte) []float64 {
	out := make([]float64, len(b))
	for i, v := range b {
		out[i] = float64(v) / 255
	}
	return out
}
