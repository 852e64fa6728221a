package audio

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/myndlens/myndlens-p-sub000/pkg/types"
)

// DefaultMaxChunkBytes is the largest decoded audio chunk accepted by default.
const DefaultMaxChunkBytes = 64 * 1024

// DefaultSampleRate is the sample rate assumed for duration estimates.
const DefaultSampleRate = 16000

var (
	// ErrAudioMissing is returned when the payload is absent or decodes to nothing.
	ErrAudioMissing = errors.New("audio: payload missing")

	// ErrAudioInvalidBase64 is returned when the payload is not valid base64.
	ErrAudioInvalidBase64 = errors.New("audio: payload is not valid base64")

	// ErrAudioTooLarge is returned when the decoded payload exceeds the limit.
	ErrAudioTooLarge = errors.New("audio: payload too large")

	// ErrNegativeSeq is returned for a negative sequence number.
	ErrNegativeSeq = errors.New("audio: negative sequence number")
)

// Validator bounds-checks and decodes inbound base64 audio payloads.
// It is safe for concurrent use.
type Validator struct {
	maxBytes   int
	sampleRate int
	encoding   Encoding
	now        func() time.Time
}

// ValidatorOption is a functional option for [NewValidator].
type ValidatorOption func(*Validator)

// WithMaxBytes sets the decoded size limit.
func WithMaxBytes(n int) ValidatorOption {
	return func(v *Validator) {
		if n > 0 {
			v.maxBytes = n
		}
	}
}

// WithEncoding sets the sample layout used for duration estimates.
func WithEncoding(enc Encoding) ValidatorOption {
	return func(v *Validator) {
		if enc.IsValid() {
			v.encoding = enc
		}
	}
}

// WithSampleRate sets the sample rate used for duration estimates.
func WithSampleRate(hz int) ValidatorOption {
	return func(v *Validator) {
		if hz > 0 {
			v.sampleRate = hz
		}
	}
}

// WithClock overrides the capture timestamp source.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

// NewValidator returns a Validator with a 64 KiB limit and 16 kHz pcm16
// duration estimates unless overridden.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		maxBytes:   DefaultMaxChunkBytes,
		sampleRate: DefaultSampleRate,
		encoding:   EncodingPCM16,
		now:        time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// MaxBytes returns the configured decoded size limit.
func (v *Validator) MaxBytes() int { return v.maxBytes }

// Validate decodes payload and returns the resulting frame. Every failure
// wraps one of the package sentinel errors.
func (v *Validator) Validate(payload string, seq int64) (types.AudioFrame, error) {
	if seq < 0 {
		return types.AudioFrame{}, ErrNegativeSeq
	}
	if payload == "" {
		return types.AudioFrame{}, ErrAudioMissing
	}
	// Reject before decoding so oversized payloads are never allocated.
	if base64.StdEncoding.DecodedLen(len(payload)) > v.maxBytes+2 {
		return types.AudioFrame{}, ErrAudioTooLarge
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return types.AudioFrame{}, errors.Join(ErrAudioInvalidBase64, err)
	}
	if len(data) == 0 {
		return types.AudioFrame{}, ErrAudioMissing
	}
	if len(data) > v.maxBytes {
		return types.AudioFrame{}, ErrAudioTooLarge
	}
	return types.AudioFrame{
		Data:       data,
		Seq:        seq,
		CapturedAt: v.now(),
		Duration:   v.estimate(len(data)),
	}, nil
}

func (v *Validator) estimate(n int) time.Duration {
	samples := n / v.encoding.BytesPerSample()
	return time.Duration(samples) * time.Second / time.Duration(v.sampleRate)
}
