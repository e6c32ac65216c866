// Package coqui provides a TTS provider backed by a locally running Coqui
// server, useful for offline development without an ElevenLabs account.
// It implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is GET /api/tts with query
//     parameters; the voice catalogue comes from GET /details.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. Synthesis is
//     POST /tts_to_audio/ with a JSON body; the voice catalogue comes from
//     GET /studio_speakers.
//
// Both servers answer with a WAV file, which is returned unchanged.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/spotcraft/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage        = "en"
	defaultTimeout         = 60 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"

	wavContentType = "audio/wav"
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the TTS server (e.g., "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 60 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		if mode != "" {
			p.apiMode = mode
		}
	}
}

// Provider implements tts.Provider backed by a Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
	apiMode    APIMode
}

// New creates a new Coqui Provider that targets the TTS server at serverURL
// (e.g., "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.apiMode != APIModeStandard && p.apiMode != APIModeXTTS {
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// studioSpeakersResponse is the map[name]any returned by GET /studio_speakers.
type studioSpeakersResponse map[string]json.RawMessage

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// Synthesize renders text and returns the server's WAV file.
func (p *Provider) Synthesize(ctx context.Context, text, voiceID string) (*tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("coqui: text must not be empty")
	}

	var (
		req *http.Request
		err error
	)
	if p.apiMode == APIModeXTTS {
		if voiceID == "" {
			return nil, errors.New("coqui: voiceID must not be empty in xtts mode")
		}
		req, err = p.xttsRequest(ctx, text, voiceID)
	} else {
		req, err = p.standardRequest(ctx, text, voiceID)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", wavContentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path,
			&tts.UpstreamError{Provider: "coqui", Status: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return &tts.Audio{Data: wav, ContentType: wavContentType}, nil
}

func (p *Provider) xttsRequest(ctx context.Context, text, voiceID string) (*http.Request, error) {
	data, err := json.Marshal(ttsRequest{Text: text, SpeakerWav: voiceID, Language: p.language})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Provider) standardRequest(ctx context.Context, text, voiceID string) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", text)
	if voiceID != "" {
		params.Set("speaker_id", voiceID)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}

// ListVoices retrieves the available voices, sorted by name.
//
// In APIModeXTTS each studio speaker becomes a voice in category "studio".
// In APIModeStandard a multi-speaker model yields one voice per speaker
// (category "speaker"); a single-speaker model yields one voice named after
// the model (category "single-speaker").
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	if p.apiMode == APIModeXTTS {
		var raw studioSpeakersResponse
		if err := p.getJSON(ctx, studioSpeakersEndpoint, &raw); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(raw))
		for name := range raw {
			names = append(names, name)
		}
		sort.Strings(names)

		voices := make([]tts.Voice, 0, len(names))
		for _, name := range names {
			voices = append(voices, tts.Voice{ID: name, Name: name, Category: "studio"})
		}
		return voices, nil
	}

	var details detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &details); err != nil {
		return nil, err
	}
	if len(details.Speakers) > 0 {
		speakers := make([]string, len(details.Speakers))
		copy(speakers, details.Speakers)
		sort.Strings(speakers)

		voices := make([]tts.Voice, 0, len(speakers))
		for _, spk := range speakers {
			voices = append(voices, tts.Voice{ID: spk, Name: spk, Category: "speaker"})
		}
		return voices, nil
	}

	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []tts.Voice{{ID: name, Name: name, Category: "single-speaker"}}, nil
}

func (p *Provider) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("coqui: create list-voices request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s: %w", path, &tts.UpstreamError{Provider: "coqui", Status: resp.StatusCode})
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coqui: decode %s: %w", path, err)
	}
	return nil
}
