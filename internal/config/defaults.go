package config

import (
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/spotcraft/pkg/duration"
)

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultRequestTimeout = 60 * time.Second
	DefaultLLMProvider    = "openai"
	DefaultTTSProvider    = "elevenlabs"
	DefaultTemperature    = 0.7
	DefaultSampleText     = "Hello! This is a sample of my voice. How do I sound?"
	DefaultKeyringService = "spotcraft"
	DefaultEnvFile        = ".env"
	DefaultMaxFailures    = 5
	DefaultResetTimeout   = 30 * time.Second
)

// DefaultDurations are the ad lengths offered when none are configured.
var DefaultDurations = []int{15, 30, 45, 60}

// keylessProviders run locally and need no API key by default.
var keylessProviders = []string{"ollama", "llamacpp", "llamafile", "coqui"}

// wellKnownSecrets maps provider names to the secret their key is usually
// stored under.
var wellKnownSecrets = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"elevenlabs": "ELEVEN_LABS_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
	"groq":       "GROQ_API_KEY",
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields of cfg in place.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if len(s.CORSOrigins) == 0 {
		s.CORSOrigins = []string{"*"}
	}
	if s.RequestTimeout == 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}

	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = DefaultLLMProvider
	}
	if cfg.Providers.TTS.Name == "" {
		cfg.Providers.TTS.Name = DefaultTTSProvider
	}
	defaultSecretName(&cfg.Providers.LLM)
	defaultSecretName(&cfg.Providers.TTS)

	sec := &cfg.Secrets
	if len(sec.Sources) == 0 {
		sec.Sources = []string{"env"}
		if sec.PostgresDSN != "" {
			sec.Sources = append(sec.Sources, "postgres")
		}
	}
	if sec.EnvFile == "" {
		sec.EnvFile = DefaultEnvFile
	}
	if sec.KeyringService == "" {
		sec.KeyringService = DefaultKeyringService
	}

	sc := &cfg.Script
	if len(sc.Durations) == 0 {
		sc.Durations = slices.Clone(DefaultDurations)
	}
	if sc.WordsPerMinute == 0 {
		sc.WordsPerMinute = duration.DefaultWordsPerMinute
	}
	if sc.Buffer == 0 {
		sc.Buffer = duration.DefaultBuffer
	}
	if sc.Temperature == 0 {
		sc.Temperature = DefaultTemperature
	}
	if sc.SampleText == "" {
		sc.SampleText = DefaultSampleText
	}

	if cfg.Breaker.MaxFailures == 0 {
		cfg.Breaker.MaxFailures = DefaultMaxFailures
	}
	if cfg.Breaker.ResetTimeout == 0 {
		cfg.Breaker.ResetTimeout = DefaultResetTimeout
	}
}

func defaultSecretName(e *ProviderEntry) {
	if e.APIKey != "" || e.APIKeySecret != "" || slices.Contains(keylessProviders, e.Name) {
		return
	}
	if name, ok := wellKnownSecrets[e.Name]; ok {
		e.APIKeySecret = name
		return
	}
	e.APIKeySecret = strings.ToUpper(strings.ReplaceAll(e.Name, "-", "_")) + "_API_KEY"
}
