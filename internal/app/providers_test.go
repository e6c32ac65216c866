package app

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/spotcraft/internal/config"
	"github.com/MrWong99/spotcraft/internal/observe"
	"github.com/MrWong99/spotcraft/internal/resilience"
	"github.com/MrWong99/spotcraft/internal/secrets"
	"github.com/MrWong99/spotcraft/pkg/provider/llm"
	llmmock "github.com/MrWong99/spotcraft/pkg/provider/llm/mock"
	"github.com/MrWong99/spotcraft/pkg/provider/tts"
	ttsmock "github.com/MrWong99/spotcraft/pkg/provider/tts/mock"
)

// mutableStore is a secrets.Store whose values can change between calls.
type mutableStore struct {
	mu     sync.Mutex
	values map[string]string
}

func (s *mutableStore) Lookup(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[name]; ok {
		return v, nil
	}
	return "", secrets.ErrNotFound
}

func (s *mutableStore) set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// recordingRegistry registers mock factories that remember the keys they
// were built with.
type recordingRegistry struct {
	mu      sync.Mutex
	llmKeys []string
	ttsKeys []string
	tts     *ttsmock.Provider
}

func (r *recordingRegistry) registry() *config.Registry {
	reg := config.NewRegistry()
	reg.RegisterLLM("mockllm", func(e config.ProviderEntry) (llm.Provider, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.llmKeys = append(r.llmKeys, e.APIKey)
		return &llmmock.Provider{}, nil
	})
	reg.RegisterTTS("mocktts", func(e config.ProviderEntry) (tts.Provider, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.ttsKeys = append(r.ttsKeys, e.APIKey)
		return r.tts, nil
	})
	return reg
}

func (r *recordingRegistry) keys() (llmKeys, ttsKeys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.llmKeys), slices.Clone(r.ttsKeys)
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader())))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testEntries() config.ProvidersConfig {
	return config.ProvidersConfig{
		LLM: config.ProviderEntry{Name: "mockllm", APIKeySecret: "LLM_KEY"},
		TTS: config.ProviderEntry{Name: "mocktts", APIKeySecret: "TTS_KEY"},
	}
}

func TestProviderSource_CachesPerKey(t *testing.T) {
	ctx := context.Background()
	store := &mutableStore{values: map[string]string{"LLM_KEY": "k1", "TTS_KEY": "t1"}}
	rr := &recordingRegistry{tts: &ttsmock.Provider{}}
	ps := newProviderSource(rr.registry(), store, testMetrics(t), testEntries(), config.BreakerConfig{})

	first, err := ps.LLM(ctx)
	if err != nil {
		t.Fatalf("LLM: %v", err)
	}
	second, err := ps.LLM(ctx)
	if err != nil {
		t.Fatalf("LLM: %v", err)
	}
	if first != second {
		t.Error("provider rebuilt although the key did not change")
	}

	store.set("LLM_KEY", "k2")
	if _, err := ps.LLM(ctx); err != nil {
		t.Fatalf("LLM after rotation: %v", err)
	}
	llmKeys, _ := rr.keys()
	if want := []string{"k1", "k2"}; !slices.Equal(llmKeys, want) {
		t.Errorf("llm built with keys %v, want %v", llmKeys, want)
	}

	if _, err := ps.TTS(ctx); err != nil {
		t.Fatalf("TTS: %v", err)
	}
	ps.setEntries(testEntries())
	if _, err := ps.TTS(ctx); err != nil {
		t.Fatalf("TTS after setEntries: %v", err)
	}
	if _, ttsKeys := rr.keys(); len(ttsKeys) != 2 {
		t.Errorf("tts built %d times, want 2 (entries reset drops the cache)", len(ttsKeys))
	}
}

func TestProviderSource_KeyResolution(t *testing.T) {
	ctx := context.Background()
	rr := &recordingRegistry{tts: &ttsmock.Provider{}}

	t.Run("missing secret", func(t *testing.T) {
		ps := newProviderSource(rr.registry(), secrets.Static{}, testMetrics(t), testEntries(), config.BreakerConfig{})
		_, err := ps.LLM(ctx)
		if !errors.Is(err, ErrMissingKey) || !errors.Is(err, secrets.ErrNotFound) {
			t.Fatalf("err = %v, want ErrMissingKey wrapping ErrNotFound", err)
		}
		if err := ps.check(ctx); err == nil {
			t.Error("check passed without keys")
		}
	})

	t.Run("inline key wins", func(t *testing.T) {
		entries := testEntries()
		entries.LLM.APIKey = "inline"
		ps := newProviderSource(rr.registry(), secrets.Static{"LLM_KEY": "stored"}, testMetrics(t), entries, config.BreakerConfig{})
		if _, err := ps.LLM(ctx); err != nil {
			t.Fatal(err)
		}
		llmKeys, _ := rr.keys()
		if got := llmKeys[len(llmKeys)-1]; got != "inline" {
			t.Errorf("built with key %q, want inline", got)
		}
	})

	t.Run("keyless", func(t *testing.T) {
		entries := testEntries()
		entries.TTS.APIKeySecret = ""
		ps := newProviderSource(rr.registry(), secrets.Static{}, testMetrics(t), entries, config.BreakerConfig{})
		if _, err := ps.TTS(ctx); err != nil {
			t.Fatalf("TTS: %v", err)
		}
	})

	t.Run("unregistered", func(t *testing.T) {
		entries := testEntries()
		entries.TTS.Name = "nope"
		ps := newProviderSource(rr.registry(), secrets.Static{"TTS_KEY": "t"}, testMetrics(t), entries, config.BreakerConfig{})
		if _, err := ps.TTS(ctx); !errors.Is(err, config.ErrProviderNotRegistered) {
			t.Errorf("err = %v, want ErrProviderNotRegistered", err)
		}
	})
}

func TestProviderSource_BreakerSurvivesRebuild(t *testing.T) {
	ctx := context.Background()
	store := &mutableStore{values: map[string]string{"LLM_KEY": "k", "TTS_KEY": "t1"}}
	failing := &ttsmock.Provider{SynthesizeErr: &tts.UpstreamError{Provider: "mocktts", Status: 500, Body: "down"}}
	rr := &recordingRegistry{tts: failing}
	ps := newProviderSource(rr.registry(), store, testMetrics(t), testEntries(),
		config.BreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute})

	for range 2 {
		p, err := ps.TTS(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := p.Synthesize(ctx, "hi", "v"); err == nil {
			t.Fatal("Synthesize succeeded against a failing upstream")
		}
	}

	store.set("TTS_KEY", "t2")
	p, err := ps.TTS(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Synthesize(ctx, "hi", "v"); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen after rebuild", err)
	}
	if got := len(failing.Calls()); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestProviderSource_VoiceUnavailableKeepsBreakerClosed(t *testing.T) {
	ctx := context.Background()
	restricted := &ttsmock.Provider{SynthesizeErr: tts.ErrVoiceUnavailable}
	rr := &recordingRegistry{tts: restricted}
	ps := newProviderSource(rr.registry(), secrets.Static{"TTS_KEY": "t"}, testMetrics(t), testEntries(),
		config.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute})

	p, err := ps.TTS(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if _, err := p.Synthesize(ctx, "hi", "pro"); !errors.Is(err, tts.ErrVoiceUnavailable) {
			t.Fatalf("err = %v, want ErrVoiceUnavailable", err)
		}
	}
	if got := ps.ttsBreaker.State(); got != resilience.StateClosed {
		t.Errorf("breaker state = %s, want closed", got)
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	reg := config.NewRegistry()
	RegisterBuiltinProviders(reg)

	llmNames := reg.Names("llm")
	for _, want := range []string{"openai", "anthropic", "ollama", "gemini", "groq"} {
		if !slices.Contains(llmNames, want) {
			t.Errorf("llm %q not registered (have %v)", want, llmNames)
		}
	}
	if got, want := reg.Names("tts"), []string{"coqui", "elevenlabs"}; !slices.Equal(got, want) {
		t.Errorf("tts names = %v, want %v", got, want)
	}

	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs", APIKey: "xi"}); err != nil {
		t.Errorf("elevenlabs: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "elevenlabs"}); err == nil {
		t.Error("elevenlabs without key succeeded")
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "coqui"}); err != nil {
		t.Errorf("coqui with default URL: %v", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", APIKey: "sk"}); err != nil {
		t.Errorf("openai: %v", err)
	}
}

func TestRegisterBuiltinProviders_ExampleConfig(t *testing.T) {
	cfg, err := config.Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	entry := cfg.Providers.TTS
	if entry.Model != "eleven_monolingual_v1" {
		t.Errorf("tts model = %q, want eleven_monolingual_v1", entry.Model)
	}

	reg := config.NewRegistry()
	RegisterBuiltinProviders(reg)
	entry.APIKey = "xi"
	for _, transport := range []string{entry.OptionString("transport", ""), "stream", "websocket"} {
		e := entry
		e.Options = map[string]any{"transport": transport}
		if _, err := reg.CreateTTS(e); err != nil {
			t.Errorf("elevenlabs with transport %q: %v", transport, err)
		}
	}
	llmEntry := cfg.Providers.LLM
	llmEntry.APIKey = "sk-test"
	if _, err := reg.CreateLLM(llmEntry); err != nil {
		t.Errorf("llm from example config: %v", err)
	}
}
