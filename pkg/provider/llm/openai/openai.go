// Package openai drafts ad scripts with the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/spotcraft/pkg/provider/llm"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

var _ llm.Provider = (*Provider)(nil)

// Provider implements [llm.Provider] over the OpenAI SDK.
type Provider struct {
	client oai.Client
	model  string
}

type settings struct {
	requestOpts []option.RequestOption
}

// Option configures a [Provider].
type Option func(*settings)

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		if url != "" {
			s.requestOpts = append(s.requestOpts, option.WithBaseURL(url))
		}
	}
}

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(s *settings) {
		if org != "" {
			s.requestOpts = append(s.requestOpts, option.WithOrganization(org))
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.requestOpts = append(s.requestOpts, option.WithHTTPClient(&http.Client{Timeout: d}))
		}
	}
}

// New creates a Provider for model, or [DefaultModel] when model is empty.
// SDK retries are off; a failed completion reaches the caller once.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	s := settings{requestOpts: []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}}
	for _, o := range opts {
		o(&s)
	}
	return &Provider{client: oai.NewClient(s.requestOpts...), model: model}, nil
}

// Model returns the chat model in use.
func (p *Provider) Model() string { return p.model }

// Complete implements [llm.Provider]. A reply that hit MaxTokens is returned
// with FinishReason [llm.FinishLength].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.params(req)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: %s returned no choices", p.model)
	}
	c := resp.Choices[0]
	return &llm.CompletionResponse{
		Content:      c.Message.Content,
		FinishReason: c.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (p *Provider) params(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	conv, err := req.Conversation()
	if err != nil {
		return oai.ChatCompletionNewParams{}, err
	}
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(conv))
	for _, m := range conv {
		u, err := toParam(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		msgs = append(msgs, u)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: msgs,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

func toParam(m llm.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case llm.RoleSystem:
		return oai.SystemMessage(m.Content), nil
	case llm.RoleUser:
		return oai.UserMessage(m.Content), nil
	case llm.RoleAssistant:
		return oai.AssistantMessage(m.Content), nil
	}
	return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown message role %q", m.Role)
}
