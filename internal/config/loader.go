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
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"elevenlabs", "coqui"},
}

// ValidSecretSources lists the accepted secrets.sources entries.
var ValidSecretSources = []string{"env", "postgres", "keyring"}

// Environment variables that override file values.
const (
	EnvListenAddr  = "SPOTCRAFT_LISTEN_ADDR"
	EnvLogLevel    = "SPOTCRAFT_LOG_LEVEL"
	EnvPostgresDSN = "SPOTCRAFT_POSTGRES_DSN"
)

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

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. An empty document yields the
// defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides selected fields from the environment. lookup is usually
// [os.LookupEnv].
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvListenAddr); ok && v != "" {
		cfg.Server.ListenAddr = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if v, ok := lookup(EnvPostgresDSN); ok && v != "" {
		cfg.Secrets.PostgresDSN = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.request_timeout %s must not be negative", cfg.Server.RequestTimeout))
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	if cfg.Providers.LLM.APIKey != "" || cfg.Providers.TTS.APIKey != "" {
		slog.Warn("inline provider api_key found in config; prefer api_key_secret")
	}

	// Secrets
	seen := make(map[string]bool, len(cfg.Secrets.Sources))
	for i, src := range cfg.Secrets.Sources {
		if !slices.Contains(ValidSecretSources, src) {
			errs = append(errs, fmt.Errorf("secrets.sources[%d] %q is invalid; valid values: env, postgres, keyring", i, src))
			continue
		}
		if seen[src] {
			errs = append(errs, fmt.Errorf("secrets.sources[%d] %q is listed twice", i, src))
		}
		seen[src] = true
	}
	if seen["postgres"] && cfg.Secrets.PostgresDSN == "" {
		errs = append(errs, errors.New("secrets.postgres_dsn is required when secrets.sources contains postgres"))
	}
	if cfg.Secrets.PostgresDSN != "" && !seen["postgres"] {
		slog.Warn("secrets.postgres_dsn is set but postgres is not in secrets.sources; it will not be used")
	}

	// Script
	if len(cfg.Script.Durations) == 0 {
		errs = append(errs, errors.New("script.durations must not be empty"))
	}
	durSeen := make(map[int]bool, len(cfg.Script.Durations))
	for i, d := range cfg.Script.Durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("script.durations[%d] %d must be positive", i, d))
		}
		if durSeen[d] {
			errs = append(errs, fmt.Errorf("script.durations[%d] %d is a duplicate", i, d))
		}
		durSeen[d] = true
	}
	if cfg.Script.WordsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("script.words_per_minute %.1f must be positive", cfg.Script.WordsPerMinute))
	}
	if cfg.Script.Buffer != 0 && cfg.Script.Buffer < 1 {
		errs = append(errs, fmt.Errorf("script.buffer %.2f must be at least 1", cfg.Script.Buffer))
	}
	if cfg.Script.Temperature < 0 || cfg.Script.Temperature > 2 {
		errs = append(errs, fmt.Errorf("script.temperature %.2f is out of range [0, 2]", cfg.Script.Temperature))
	}
	if cfg.Script.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("script.max_tokens %d must not be negative", cfg.Script.MaxTokens))
	}

	// Breaker
	if cfg.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("breaker.max_failures %d must not be negative", cfg.Breaker.MaxFailures))
	}
	if cfg.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("breaker.reset_timeout %s must not be negative", cfg.Breaker.ResetTimeout))
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
