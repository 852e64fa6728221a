package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"mock", "deepgram", "google"},
	"tts": {"mock", "elevenlabs"},
	"vad": {"rms", "mock"},
}

// ValidDimensions lists the checklist dimension names accepted in
// capture.required_dimensions.
var ValidDimensions = []string{"who", "what", "when", "where", "how"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	*cfg = cfg.WithDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It expects
// defaults to have been applied and returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxMessageBytes < int64(cfg.Capture.MaxChunkBytes) {
		errs = append(errs, fmt.Errorf("server.max_message_bytes %d must be at least capture.max_chunk_bytes %d", cfg.Server.MaxMessageBytes, cfg.Capture.MaxChunkBytes))
	}
	if cfg.Server.HeartbeatInterval >= cfg.Presence.StaleAfter {
		errs = append(errs, fmt.Errorf("server.heartbeat_interval %s must be shorter than presence.stale_after %s", cfg.Server.HeartbeatInterval, cfg.Presence.StaleAfter))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)
	if cfg.Providers.STT.Name == "deepgram" && cfg.Providers.STT.APIKey == "" {
		slog.Warn("providers.stt is deepgram but api_key is empty; transcription will degrade to no fragments")
	}
	if cfg.Providers.TTS.Name == "elevenlabs" && cfg.Providers.TTS.APIKey == "" {
		slog.Warn("providers.tts is elevenlabs but api_key is empty; replies will fall back to text")
	}

	// Capture
	c := cfg.Capture
	if c.VADThreshold <= 0 || c.VADThreshold >= 1 {
		errs = append(errs, fmt.Errorf("capture.vad_threshold %.3f is out of range (0, 1)", c.VADThreshold))
	}
	if c.VADSilence < 0 || c.VADMinSpeech < 0 {
		errs = append(errs, errors.New("capture.vad_silence and capture.vad_min_speech must not be negative"))
	}
	if c.QuestionBudget < 0 || c.QuestionBudget > MaxQuestionBudget {
		errs = append(errs, fmt.Errorf("capture.question_budget %d is out of range [0, %d]", c.QuestionBudget, MaxQuestionBudget))
	}
	if c.CaptureWindow <= 0 {
		errs = append(errs, fmt.Errorf("capture.capture_window %s must be positive", c.CaptureWindow))
	}
	if c.MaxChunkBytes <= 0 {
		errs = append(errs, fmt.Errorf("capture.max_chunk_bytes %d must be positive", c.MaxChunkBytes))
	}
	if c.SampleEncoding != "pcm16" && c.SampleEncoding != "u8" {
		errs = append(errs, fmt.Errorf("capture.sample_encoding %q is invalid; valid values: pcm16, u8", c.SampleEncoding))
	}
	seen := make(map[string]int, len(c.RequiredDimensions))
	for i, d := range c.RequiredDimensions {
		if !slices.Contains(ValidDimensions, d) {
			errs = append(errs, fmt.Errorf("capture.required_dimensions[%d] %q is invalid; valid values: %v", i, d, ValidDimensions))
			continue
		}
		if prev, ok := seen[d]; ok {
			errs = append(errs, fmt.Errorf("capture.required_dimensions[%d] %q is a duplicate of [%d]", i, d, prev))
		}
		seen[d] = i
	}

	// Presence and guardrail
	if cfg.Presence.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("presence.stale_after %s must be positive", cfg.Presence.StaleAfter))
	}
	if t := cfg.Guardrail.AmbiguityThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("guardrail.ambiguity_threshold %.2f is out of range (0, 1]", t))
	}

	// Handoff
	if cfg.Handoff.Enabled && len(cfg.Handoff.Brokers) == 0 {
		errs = append(errs, errors.New("handoff.brokers is required when handoff.enabled is true"))
	}

	// Capture log
	if cfg.CaptureLog.PostgresDSN == "" {
		slog.Debug("capture_log.postgres_dsn is empty; fragment audit log disabled")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
