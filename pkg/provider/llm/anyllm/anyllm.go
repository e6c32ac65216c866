// Package anyllm drafts ad scripts through github.com/mozilla-ai/any-llm-go,
// which puts Anthropic, Gemini, Mistral, Groq, DeepSeek and local Ollama or
// llama.cpp servers behind one completion API.
//
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllmlib.WithAPIKey(key))
//	p, err := anyllm.New("ollama", "llama3.2")
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/spotcraft/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

type constructor func(...anyllmlib.Option) (anyllmlib.Provider, error)

// backends maps provider names to their any-llm constructors.
var backends = map[string]constructor{
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
}

// SupportedProviders lists the backend names accepted by [New], sorted.
var SupportedProviders = func() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}()

// Provider implements [llm.Provider] over an any-llm backend.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
}

// New creates a Provider for the named backend. Without an API key option
// the backend reads its usual environment variable, for example
// ANTHROPIC_API_KEY.
func New(name, model string, opts ...anyllmlib.Option) (*Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, errors.New("anyllm: provider name is required")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: %s: model is required", name)
	}
	ctor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported provider %q; supported: %s", name, strings.Join(SupportedProviders, ", "))
	}
	backend, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %s backend: %w", name, err)
	}
	return &Provider{backend: backend, name: name, model: model}, nil
}

// Name returns the normalised backend name.
func (p *Provider) Name() string { return p.name }

// Complete implements [llm.Provider].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s: %w", p.name, err)
	}
	resp, err := p.backend.Completion(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.name)
	}

	c := resp.Choices[0]
	out := &llm.CompletionResponse{
		Content:      c.Message.ContentString(),
		FinishReason: string(c.FinishReason),
	}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func (p *Provider) params(req llm.CompletionRequest) (anyllmlib.CompletionParams, error) {
	conv, err := req.Conversation()
	if err != nil {
		return anyllmlib.CompletionParams{}, err
	}
	params := anyllmlib.CompletionParams{
		Model:    p.model,
		Messages: make([]anyllmlib.Message, 0, len(conv)),
	}
	for _, m := range conv {
		params.Messages = append(params.Messages, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params, nil
}
