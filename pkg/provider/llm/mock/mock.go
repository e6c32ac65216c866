// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the script writer sends correct
// CompletionRequests and to feed controlled replies without a live backend.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "Acme. Fast."},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/spotcraft/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// A nil CompleteResponse with a nil CompleteErr returns (nil, nil).
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// CompleteFunc, when set, overrides CompleteResponse and CompleteErr.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns CompleteFunc's result when set,
// otherwise CompleteResponse and CompleteErr.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn, resp, err := p.CompleteFunc, p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return resp, err
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
