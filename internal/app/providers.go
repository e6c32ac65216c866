package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/spotcraft/internal/config"
	"github.com/MrWong99/spotcraft/internal/observe"
	"github.com/MrWong99/spotcraft/internal/resilience"
	"github.com/MrWong99/spotcraft/internal/secrets"
	"github.com/MrWong99/spotcraft/pkg/provider/llm"
	"github.com/MrWong99/spotcraft/pkg/provider/llm/anyllm"
	"github.com/MrWong99/spotcraft/pkg/provider/llm/openai"
	"github.com/MrWong99/spotcraft/pkg/provider/tts"
	"github.com/MrWong99/spotcraft/pkg/provider/tts/coqui"
	"github.com/MrWong99/spotcraft/pkg/provider/tts/elevenlabs"
)

// defaultCoquiURL is used when the coqui entry has no base_url.
const defaultCoquiURL = "http://localhost:5002"

// RegisterBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry whose APIKey has already been
// resolved.
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptionString("organization", ""); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d := entry.OptionDuration("timeout", 0); d > 0 {
			opts = append(opts, openai.WithTimeout(d))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq and the local servers share
	// the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range anyllm.SupportedProviders {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []elevenlabs.Option{
			elevenlabs.WithModel(entry.Model),
			elevenlabs.WithBaseURL(entry.BaseURL),
			elevenlabs.WithOutputFormat(entry.OptionString("output_format", "")),
			elevenlabs.WithVoiceSettings(
				entry.OptionFloat("stability", 0.5),
				entry.OptionFloat("similarity_boost", 0.5),
			),
			elevenlabs.WithTransport(elevenlabs.Transport(entry.OptionString("transport", ""))),
		}
		if d := entry.OptionDuration("timeout", 0); d > 0 {
			opts = append(opts, elevenlabs.WithTimeout(d))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		url := entry.BaseURL
		if url == "" {
			url = defaultCoquiURL
		}
		opts := []coqui.Option{
			coqui.WithAPIMode(coqui.APIMode(entry.OptionString("api_mode", ""))),
		}
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if d := entry.OptionDuration("timeout", 0); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(url, opts...)
	})
}

// ErrMissingKey means a provider needs an API key that no secret store holds.
var ErrMissingKey = errors.New("app: provider api key not configured")

type cachedLLM struct {
	key string
	p   llm.Provider
}

type cachedTTS struct {
	key string
	p   tts.Provider
}

// providerSource builds providers on demand. Keys are resolved through the
// secrets store on every call; a provider instance is reused until its key or
// entry changes. Instances share one circuit breaker per kind so rebuilding a
// provider does not reset its failure history.
type providerSource struct {
	reg     *config.Registry
	store   secrets.Store
	metrics *observe.Metrics

	llmBreaker *resilience.CircuitBreaker
	ttsBreaker *resilience.CircuitBreaker

	mu      sync.Mutex
	gen     uint64
	entries config.ProvidersConfig
	llm     cachedLLM
	tts     cachedTTS
}

func newProviderSource(reg *config.Registry, store secrets.Store, m *observe.Metrics, entries config.ProvidersConfig, bc config.BreakerConfig) *providerSource {
	return &providerSource{
		reg:     reg,
		store:   store,
		metrics: m,
		entries: entries,
		llmBreaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "llm",
			MaxFailures:  bc.MaxFailures,
			ResetTimeout: bc.ResetTimeout,
		}),
		ttsBreaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "tts",
			MaxFailures:  bc.MaxFailures,
			ResetTimeout: bc.ResetTimeout,
			IsFailure:    resilience.TTSFailure,
		}),
	}
}

// setEntries swaps the provider configuration and drops cached instances.
func (p *providerSource) setEntries(entries config.ProvidersConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	p.entries = entries
	p.llm = cachedLLM{}
	p.tts = cachedTTS{}
}

func (p *providerSource) snapshot() (uint64, config.ProvidersConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen, p.entries
}

// LLM implements api.Backend.
func (p *providerSource) LLM(ctx context.Context) (llm.Provider, error) {
	gen, entries := p.snapshot()
	key, err := p.resolveKey(ctx, "llm", entries.LLM)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen && p.llm.p != nil && p.llm.key == key {
		return p.llm.p, nil
	}
	e := entries.LLM
	e.APIKey = key
	raw, err := p.reg.CreateLLM(e)
	if err != nil {
		return nil, fmt.Errorf("app: create llm %q: %w", e.Name, err)
	}
	guarded := resilience.NewLLM(e.Name, raw, p.llmBreaker, p.metrics)
	if p.gen == gen {
		p.llm = cachedLLM{key: key, p: guarded}
	}
	observe.Logger(ctx).Debug("llm provider built", "provider", e.Name, "model", e.Model)
	return guarded, nil
}

// TTS implements api.Backend.
func (p *providerSource) TTS(ctx context.Context) (tts.Provider, error) {
	gen, entries := p.snapshot()
	key, err := p.resolveKey(ctx, "tts", entries.TTS)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen == gen && p.tts.p != nil && p.tts.key == key {
		return p.tts.p, nil
	}
	e := entries.TTS
	e.APIKey = key
	raw, err := p.reg.CreateTTS(e)
	if err != nil {
		return nil, fmt.Errorf("app: create tts %q: %w", e.Name, err)
	}
	guarded := resilience.NewTTS(e.Name, raw, p.ttsBreaker, p.metrics)
	if p.gen == gen {
		p.tts = cachedTTS{key: key, p: guarded}
	}
	observe.Logger(ctx).Debug("tts provider built", "provider", e.Name, "model", e.Model)
	return guarded, nil
}

// resolveKey returns the inline key, the secret named by the entry, or "" for
// keyless providers.
func (p *providerSource) resolveKey(ctx context.Context, kind string, e config.ProviderEntry) (string, error) {
	if e.APIKey != "" {
		return e.APIKey, nil
	}
	if e.APIKeySecret == "" {
		return "", nil
	}
	key, err := p.store.Lookup(ctx, e.APIKeySecret)
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return "", fmt.Errorf("%w: %s key %q: %w", ErrMissingKey, kind, e.APIKeySecret, err)
		}
		return "", fmt.Errorf("app: resolve %s key %q: %w", kind, e.APIKeySecret, err)
	}
	return key, nil
}

// check reports whether both providers can be built with the current
// configuration and secrets.
func (p *providerSource) check(ctx context.Context) error {
	if _, err := p.LLM(ctx); err != nil {
		return err
	}
	_, err := p.TTS(ctx)
	return err
}
