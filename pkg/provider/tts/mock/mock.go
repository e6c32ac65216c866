// Package mock provides a test double for the tts.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeResult: &tts.Audio{Data: []byte("mp3"), ContentType: "audio/mpeg"},
//	    ListVoicesResult: []tts.Voice{{ID: "v1", Name: "Rachel"}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/spotcraft/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Text    string
	VoiceID string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeResult is returned by Synthesize when SynthesizeErr is nil.
	SynthesizeResult *tts.Audio

	// SynthesizeErr, if non-nil, is returned from Synthesize.
	SynthesizeErr error

	// SynthesizeFunc, if set, takes precedence over SynthesizeResult and SynthesizeErr.
	SynthesizeFunc func(ctx context.Context, text, voiceID string) (*tts.Audio, error)

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.Voice

	// ListVoicesErr, if non-nil, is returned from ListVoices.
	ListVoicesErr error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCalls counts calls to ListVoices.
	ListVoicesCalls int
}

// Synthesize records the call and returns the configured result.
func (p *Provider) Synthesize(ctx context.Context, text, voiceID string) (*tts.Audio, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, VoiceID: voiceID})
	fn, res, err := p.SynthesizeFunc, p.SynthesizeResult, p.SynthesizeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text, voiceID)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &tts.Audio{Data: []byte(text), ContentType: "audio/mpeg"}, nil
	}
	return res, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns a copy of the recorded Synthesize calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.ListVoicesCalls = 0
}

var _ tts.Provider = (*Provider)(nil)
