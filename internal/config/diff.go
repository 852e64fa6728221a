package config

import "time"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// (listen address, providers, capture tuning) requires a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	StaleAfterChanged bool
	NewStaleAfter     time.Duration

	AmbiguityThresholdChanged bool
	NewAmbiguityThreshold     float64

	// RestartRequired is true when a field outside the hot-reloadable set changed.
	RestartRequired bool
}

// Empty reports whether no hot-reloadable field changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.StaleAfterChanged && !d.AmbiguityThresholdChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Presence.StaleAfter != new.Presence.StaleAfter {
		d.StaleAfterChanged = true
		d.NewStaleAfter = new.Presence.StaleAfter
	}
	if old.Guardrail.AmbiguityThreshold != new.Guardrail.AmbiguityThreshold {
		d.AmbiguityThresholdChanged = true
		d.NewAmbiguityThreshold = new.Guardrail.AmbiguityThreshold
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!sameProvider(old.Providers.STT, new.Providers.STT) ||
		!sameProvider(old.Providers.TTS, new.Providers.TTS) ||
		!sameProvider(old.Providers.VAD, new.Providers.VAD) ||
		old.Capture.CaptureWindow != new.Capture.CaptureWindow ||
		old.Capture.VADThreshold != new.Capture.VADThreshold ||
		old.Handoff.Enabled != new.Handoff.Enabled ||
		old.CaptureLog.PostgresDSN != new.CaptureLog.PostgresDSN {
		d.RestartRequired = true
	}
	return d
}

func sameProvider(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
