// Package config provides the configuration schema, loader, and provider registry
// for the MyndLens capture server.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Capture    CaptureConfig    `yaml:"capture"`
	Presence   PresenceConfig   `yaml:"presence"`
	Guardrail  GuardrailConfig  `yaml:"guardrail"`
	Handoff    HandoffConfig    `yaml:"handoff"`
	CaptureLog CaptureLogConfig `yaml:"capture_log"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// HeartbeatInterval is advertised to clients in auth_ok.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// HandshakeTimeout bounds the wait for the auth message after connect.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// MaxMessageBytes caps the size of a single inbound WebSocket message.
	MaxMessageBytes int64 `yaml:"max_message_bytes"`

	// AllowedOrigins lists host patterns accepted for cross-origin WebSocket
	// upgrades. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "mock", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// CaptureConfig tunes voice activity detection and the conversation state machine.
type CaptureConfig struct {
	// VADThreshold is the RMS energy a frame must exceed to count as speech.
	VADThreshold float64 `yaml:"vad_threshold"`

	// VADSilence is the sub-threshold span that ends an utterance.
	VADSilence time.Duration `yaml:"vad_silence"`

	// VADMinSpeech is the shortest utterance that is transcribed.
	VADMinSpeech time.Duration `yaml:"vad_min_speech"`

	// QuestionBudget is the number of clarifying questions per mandate (max 3).
	QuestionBudget int `yaml:"question_budget"`

	// CaptureWindow bounds how long a mandate may be assembled, measured from
	// the creation of the conversation state.
	CaptureWindow time.Duration `yaml:"capture_window"`

	// SweepInterval is how often expired conversation states are collected.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// MaxChunkBytes is the largest decoded audio chunk accepted.
	MaxChunkBytes int `yaml:"max_chunk_bytes"`

	// SampleEncoding is the inbound audio layout: "pcm16" or "u8".
	SampleEncoding string `yaml:"sample_encoding"`

	// SampleRate is the inbound audio sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Language is the BCP-47 recognition language passed to STT.
	Language string `yaml:"language"`

	// RequiredDimensions lists the checklist dimensions tracked for each
	// mandate. Valid names: who, what, when, where, how.
	RequiredDimensions []string `yaml:"required_dimensions"`

	// EndStreamTimeout bounds the wait for a vendor's final transcript.
	EndStreamTimeout time.Duration `yaml:"end_stream_timeout"`
}

// PresenceConfig tunes the heartbeat liveness gate.
type PresenceConfig struct {
	// StaleAfter is the heartbeat age beyond which side-effecting operations
	// are refused.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// GuardrailConfig tunes the local safety pre-filter.
type GuardrailConfig struct {
	// AmbiguityThreshold is the score at or above which a request is nudged
	// for clarification instead of passed.
	AmbiguityThreshold float64 `yaml:"ambiguity_threshold"`
}

// HandoffConfig configures delivery of mandate drafts to intent resolution.
type HandoffConfig struct {
	// Enabled turns on Kafka delivery. When false, drafts are only logged.
	Enabled bool `yaml:"enabled"`

	// Brokers lists Kafka bootstrap addresses.
	Brokers []string `yaml:"brokers"`

	// DraftTopic receives drafts ready for intent resolution.
	DraftTopic string `yaml:"draft_topic"`

	// DispatchTopic receives drafts the user approved for execution.
	DispatchTopic string `yaml:"dispatch_topic"`

	// WriteTimeout bounds a single publish.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// CaptureLogConfig configures the optional fragment audit log.
type CaptureLogConfig struct {
	// PostgresDSN is the connection string. Empty disables the log.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Defaults used by [Config.WithDefaults].
const (
	DefaultListenAddr         = ":8080"
	DefaultHeartbeatInterval  = 5 * time.Second
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultMaxMessageBytes    = 128 * 1024
	DefaultVADThreshold       = 0.015
	DefaultVADSilence         = 1200 * time.Millisecond
	DefaultVADMinSpeech       = 300 * time.Millisecond
	DefaultQuestionBudget     = 3
	MaxQuestionBudget         = 3
	DefaultCaptureWindow      = 120 * time.Second
	DefaultSweepInterval      = 5 * time.Second
	DefaultMaxChunkBytes      = 64 * 1024
	DefaultSampleEncoding     = "pcm16"
	DefaultSampleRate         = 16000
	DefaultLanguage           = "en-US"
	DefaultEndStreamTimeout   = 3 * time.Second
	DefaultStaleAfter         = 15 * time.Second
	DefaultAmbiguityThreshold = 0.30
	DefaultDraftTopic         = "myndlens.mandate.drafts"
	DefaultDispatchTopic      = "myndlens.mandate.dispatch"
	DefaultWriteTimeout       = 5 * time.Second
)

// DefaultRequiredDimensions are tracked when capture.required_dimensions is empty.
var DefaultRequiredDimensions = []string{"what", "who", "when"}

// WithDefaults returns a copy of c with every zero value replaced by its default.
func (c Config) WithDefaults() Config {
	setDefault(&c.Server.ListenAddr, DefaultListenAddr)
	setDefault(&c.Server.LogLevel, LogInfo)
	setDefault(&c.Server.HeartbeatInterval, DefaultHeartbeatInterval)
	setDefault(&c.Server.HandshakeTimeout, DefaultHandshakeTimeout)
	setDefault(&c.Server.MaxMessageBytes, DefaultMaxMessageBytes)

	setDefault(&c.Providers.STT.Name, "mock")
	setDefault(&c.Providers.TTS.Name, "mock")
	setDefault(&c.Providers.VAD.Name, "rms")

	setDefault(&c.Capture.VADThreshold, DefaultVADThreshold)
	setDefault(&c.Capture.VADSilence, DefaultVADSilence)
	setDefault(&c.Capture.VADMinSpeech, DefaultVADMinSpeech)
	setDefault(&c.Capture.QuestionBudget, DefaultQuestionBudget)
	setDefault(&c.Capture.CaptureWindow, DefaultCaptureWindow)
	setDefault(&c.Capture.SweepInterval, DefaultSweepInterval)
	setDefault(&c.Capture.MaxChunkBytes, DefaultMaxChunkBytes)
	setDefault(&c.Capture.SampleEncoding, DefaultSampleEncoding)
	setDefault(&c.Capture.SampleRate, DefaultSampleRate)
	setDefault(&c.Capture.Language, DefaultLanguage)
	setDefault(&c.Capture.EndStreamTimeout, DefaultEndStreamTimeout)
	if len(c.Capture.RequiredDimensions) == 0 {
		c.Capture.RequiredDimensions = append([]string(nil), DefaultRequiredDimensions...)
	}

	setDefault(&c.Presence.StaleAfter, DefaultStaleAfter)
	setDefault(&c.Guardrail.AmbiguityThreshold, DefaultAmbiguityThreshold)

	setDefault(&c.Handoff.DraftTopic, DefaultDraftTopic)
	setDefault(&c.Handoff.DispatchTopic, DefaultDispatchTopic)
	setDefault(&c.Handoff.WriteTimeout, DefaultWriteTimeout)
	return c
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}
