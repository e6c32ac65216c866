// Package llm defines the Provider interface for the language models that
// draft and shorten ad scripts.
//
// A Provider wraps a hosted or local model API (OpenAI, Anthropic, a local
// Ollama, ...) behind a single blocking completion call. Script generation
// needs one complete reply per request, so there is no streaming surface.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"errors"
)

// Role values accepted in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FinishLength is the finish reason of a reply that hit MaxTokens.
const FinishLength = "length"

// ErrNoMessages is returned for a request with neither a system prompt nor
// messages.
var ErrNoMessages = errors.New("llm: request has no messages")

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// Usage is the token accounting reported by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest is a single completion call.
type CompletionRequest struct {
	// SystemPrompt is sent ahead of Messages as a system message.
	SystemPrompt string

	Messages []Message

	// Temperature in [0, 2]. Zero leaves it to the provider.
	Temperature float64

	// MaxTokens caps the reply. Zero leaves it to the provider.
	MaxTokens int
}

// Conversation returns the messages to send: the system prompt, when set,
// followed by Messages.
func (r CompletionRequest) Conversation() ([]Message, error) {
	out := make([]Message, 0, len(r.Messages)+1)
	if r.SystemPrompt != "" {
		out = append(out, Message{Role: RoleSystem, Content: r.SystemPrompt})
	}
	out = append(out, r.Messages...)
	if len(out) == 0 {
		return nil, ErrNoMessages
	}
	return out, nil
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content string

	// FinishReason is the backend's stop reason, for example "stop" or
	// [FinishLength].
	FinishReason string

	Usage Usage
}

// Truncated reports whether the reply was cut off by the token limit.
func (r *CompletionResponse) Truncated() bool {
	return r.FinishReason == FinishLength
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req and waits for the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
