package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ScriptChanged is true if any duration policy or drafting setting changed.
	ScriptChanged bool

	// ProvidersChanged is true if the LLM or TTS entry changed. Providers are
	// rebuilt lazily on the next request.
	ProvidersChanged bool

	// RestartRequired lists settings that changed but only apply after a restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !scriptEqual(old.Script, new.Script) {
		d.ScriptChanged = true
	}

	if !entryEqual(old.Providers.LLM, new.Providers.LLM) || !entryEqual(old.Providers.TTS, new.Providers.TTS) {
		d.ProvidersChanged = true
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.MetricsAddr != new.Server.MetricsAddr {
		d.RestartRequired = append(d.RestartRequired, "server.metrics_addr")
	}
	if !slices.Equal(old.Server.CORSOrigins, new.Server.CORSOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server.cors_origins")
	}
	if !slices.Equal(old.Secrets.Sources, new.Secrets.Sources) || old.Secrets.PostgresDSN != new.Secrets.PostgresDSN ||
		old.Secrets.KeyringService != new.Secrets.KeyringService {
		d.RestartRequired = append(d.RestartRequired, "secrets")
	}
	if old.Breaker != new.Breaker {
		d.RestartRequired = append(d.RestartRequired, "breaker")
	}

	return d
}

func scriptEqual(a, b ScriptConfig) bool {
	return slices.Equal(a.Durations, b.Durations) &&
		a.WordsPerMinute == b.WordsPerMinute &&
		a.Buffer == b.Buffer &&
		a.Temperature == b.Temperature &&
		a.MaxTokens == b.MaxTokens &&
		a.SampleText == b.SampleText
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.APIKeySecret != b.APIKeySecret ||
		a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) == 0 && len(b.Options) == 0 {
		return true
	}
	return reflect.DeepEqual(a.Options, b.Options)
}
