package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/spotcraft/pkg/provider/llm"
	"github.com/MrWong99/spotcraft/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when no factory exists for an entry's
// Name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is the name-keyed table for one provider kind.
type factories[P any] struct {
	kind string
	m    map[string]Factory[P]
}

func (f factories[P]) create(e ProviderEntry) (P, error) {
	build, ok := f.m[e.Name]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, e.Name)
	}
	return build(e)
}

// Registry maps provider names to constructors for the script model and the
// speech provider. It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm factories[llm.Provider]
	tts factories[tts.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: factories[llm.Provider]{kind: "llm", m: map[string]Factory[llm.Provider]{}},
		tts: factories[tts.Provider]{kind: "tts", m: map[string]Factory[tts.Provider]{}},
	}
}

// RegisterLLM registers a language model factory under name, replacing any
// earlier one.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm.m[name] = factory
}

// RegisterTTS registers a speech provider factory under name, replacing any
// earlier one.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts.m[name] = factory
}

// CreateLLM builds the language model named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f := r.llm
	r.mu.RUnlock()
	return f.create(entry)
}

// CreateTTS builds the speech provider named by entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	f := r.tts
	r.mu.RUnlock()
	return f.create(entry)
}

// Names returns the sorted provider names registered for kind, "llm" or
// "tts".
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case "llm":
		return slices.Sorted(maps.Keys(r.llm.m))
	case "tts":
		return slices.Sorted(maps.Keys(r.tts.m))
	}
	return nil
}
