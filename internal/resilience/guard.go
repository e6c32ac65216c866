package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrWong99/spotcraft/internal/observe"
	"github.com/MrWong99/spotcraft/pkg/provider/llm"
	"github.com/MrWong99/spotcraft/pkg/provider/tts"
)

// LLM guards an [llm.Provider] with a circuit breaker and records each call
// in the provider metrics.
type LLM struct {
	name     string
	provider llm.Provider
	breaker  *CircuitBreaker
	metrics  *observe.Metrics
}

var _ llm.Provider = (*LLM)(nil)

// NewLLM wraps p. The breaker is shared by the caller so its state survives a
// provider being rebuilt with a new key.
func NewLLM(name string, p llm.Provider, cb *CircuitBreaker, m *observe.Metrics) *LLM {
	return &LLM{name: name, provider: p, breaker: cb, metrics: m}
}

// Complete forwards req once. A rejected call wraps [ErrCircuitOpen].
func (g *LLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, span := observe.StartSpan(ctx, "llm.complete")
	defer span.End()

	start := time.Now()
	resp, err := call(g.breaker, func() (*llm.CompletionResponse, error) {
		return g.provider.Complete(ctx, req)
	})
	if errors.Is(err, ErrCircuitOpen) {
		g.metrics.RecordProviderRequest(ctx, g.name, "llm", "rejected")
		return nil, fmt.Errorf("resilience: llm %s: %w", g.name, err)
	}
	g.metrics.ObserveCall(ctx, "llm", g.name, start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return resp, nil
}

// TTS guards a [tts.Provider] with a circuit breaker and records each call
// in the provider metrics.
type TTS struct {
	name     string
	provider tts.Provider
	breaker  *CircuitBreaker
	metrics  *observe.Metrics
}

var _ tts.Provider = (*TTS)(nil)

// NewTTS wraps p. See [NewLLM].
func NewTTS(name string, p tts.Provider, cb *CircuitBreaker, m *observe.Metrics) *TTS {
	return &TTS{name: name, provider: p, breaker: cb, metrics: m}
}

// Synthesize forwards the request once.
func (g *TTS) Synthesize(ctx context.Context, text, voiceID string) (*tts.Audio, error) {
	ctx, span := observe.StartSpan(ctx, "tts.synthesize")
	defer span.End()

	start := time.Now()
	audio, err := call(g.breaker, func() (*tts.Audio, error) {
		return g.provider.Synthesize(ctx, text, voiceID)
	})
	return guarded(ctx, g, start, audio, err)
}

// ListVoices forwards the request once.
func (g *TTS) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	ctx, span := observe.StartSpan(ctx, "tts.list_voices")
	defer span.End()

	start := time.Now()
	voices, err := call(g.breaker, func() ([]tts.Voice, error) {
		return g.provider.ListVoices(ctx)
	})
	return guarded(ctx, g, start, voices, err)
}

func guarded[T any](ctx context.Context, g *TTS, start time.Time, v T, err error) (T, error) {
	var zero T
	if errors.Is(err, ErrCircuitOpen) {
		g.metrics.RecordProviderRequest(ctx, g.name, "tts", "rejected")
		return zero, fmt.Errorf("resilience: tts %s: %w", g.name, err)
	}
	g.metrics.ObserveCall(ctx, "tts", g.name, start, err)
	if err != nil {
		return zero, err
	}
	return v, nil
}

// TTSFailure classifies TTS errors for a [CircuitBreaker]. Restricted voices
// and client errors other than 429 say nothing about upstream health.
func TTSFailure(err error) bool {
	if !CountsAsFailure(err) || errors.Is(err, tts.ErrVoiceUnavailable) {
		return false
	}
	var ue *tts.UpstreamError
	if errors.As(err, &ue) {
		return ue.Status >= http.StatusInternalServerError || ue.Status == http.StatusTooManyRequests
	}
	return true
}
