// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a local
// Coqui server) and presents a uniform request/response interface: one call
// renders a complete script into an encoded audio clip, another lists the
// voices the account may use.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"fmt"
)

// ErrVoiceUnavailable is returned (wrapped) when the provider refuses a voice
// because of the account's subscription tier.
var ErrVoiceUnavailable = errors.New("tts: voice not available for this account tier")

// Voice is a single entry of the provider's voice catalogue.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Category is the provider's grouping label (e.g., "premade", "cloned").
	Category string
}

// Audio is a rendered clip.
type Audio struct {
	// Data holds the encoded audio bytes.
	Data []byte

	// ContentType is the MIME type of Data (e.g., "audio/mpeg").
	ContentType string
}

// UpstreamError reports a non-success HTTP response from a provider.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.Status, e.Body)
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice. An error wrapping
	// [ErrVoiceUnavailable] means the voice is restricted for this account.
	Synthesize(ctx context.Context, text, voiceID string) (*Audio, error)

	// ListVoices returns the provider's current voice catalogue in provider order.
	ListVoices(ctx context.Context) ([]Voice, error)
}
