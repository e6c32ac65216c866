// Package elevenlabs provides an ElevenLabs-backed TTS provider. Synthesis runs
// either over the REST text-to-speech endpoint or over the streaming
// stream-input WebSocket API, in which case all audio chunks are collected into
// a single clip. It implements the tts.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/spotcraft/pkg/provider/tts"
)

const (
	defaultBaseURL         = "https://api.elevenlabs.io"
	defaultModel           = "eleven_monolingual_v1"
	defaultStability       = 0.5
	defaultSimilarityBoost = 0.5
	defaultTimeout         = 60 * time.Second

	ttsPathFmt    = "/v1/text-to-speech/%s"
	streamPathFmt = "/v1/text-to-speech/%s/stream-input"
	voicesPath    = "/v1/voices"

	// freeUserRestricted is the status ElevenLabs reports when a voice is
	// locked behind a paid tier.
	freeUserRestricted = "free_users_not_allowed"

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 64 << 10
)

// Transport selects how Synthesize talks to ElevenLabs.
type Transport string

const (
	// TransportREST issues one POST per clip. This is the default.
	TransportREST Transport = "rest"

	// TransportStream uses the stream-input WebSocket API. "websocket" is
	// accepted as an alias.
	TransportStream Transport = "stream"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_monolingual_v1").
func WithModel(model string) Option {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128").
// Empty leaves the choice to ElevenLabs, which returns MP3.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoiceSettings overrides the stability and similarity boost sent with
// every request.
func WithVoiceSettings(stability, similarityBoost float64) Option {
	return func(p *Provider) {
		p.settings = voiceSettings{Stability: stability, SimilarityBoost: similarityBoost}
	}
}

// WithBaseURL points the provider at a different API host. The WebSocket
// endpoint is derived from it by swapping the scheme.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTransport selects REST or WebSocket synthesis. Names are matched
// case-insensitively.
func WithTransport(t Transport) Option {
	return func(p *Provider) {
		switch t = Transport(strings.ToLower(strings.TrimSpace(string(t)))); t {
		case "":
		case "websocket", "ws":
			p.transport = TransportStream
		default:
			p.transport = t
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements tts.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	outputFormat string
	transport    Transport
	settings     voiceSettings
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		transport:  TransportREST,
		settings:   voiceSettings{Stability: defaultStability, SimilarityBoost: defaultSimilarityBoost},
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.transport {
	case TransportREST, TransportStream:
	default:
		return nil, fmt.Errorf("elevenlabs: unknown transport %q", p.transport)
	}
	return p, nil
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// ttsRequest is the JSON body of POST /v1/text-to-speech/{voice_id}.
type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// errorResponse covers the {"detail": {...}} shape of ElevenLabs errors.
type errorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// Synthesize renders text with voiceID and returns the encoded clip.
func (p *Provider) Synthesize(ctx context.Context, text, voiceID string) (*tts.Audio, error) {
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}
	if p.transport == TransportStream {
		return p.synthesizeStream(ctx, text, voiceID)
	}
	return p.synthesizeREST(ctx, text, voiceID)
}

func (p *Provider) synthesizeREST(ctx context.Context, text, voiceID string) (*tts.Audio, error) {
	body, err := json.Marshal(ttsRequest{Text: text, ModelID: p.model, VoiceSettings: p.settings})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal tts request: %w", err)
	}

	endpoint := p.baseURL + fmt.Sprintf(ttsPathFmt, url.PathEscape(voiceID))
	if p.outputFormat != "" {
		endpoint += "?output_format=" + url.QueryEscape(p.outputFormat)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: synthesize HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: synthesize: %w", classifyError(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}

	ct := contentTypeFor(p.outputFormat)
	if ct == "" {
		ct = resp.Header.Get("Content-Type")
	}
	if ct == "" {
		ct = "audio/mpeg"
	}
	return &tts.Audio{Data: data, ContentType: ct}, nil
}

// classifyError turns a non-200 response into an *tts.UpstreamError, joined
// with tts.ErrVoiceUnavailable for tier restrictions.
func classifyError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	ue := &tts.UpstreamError{Provider: "elevenlabs", Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	if isVoiceRestricted(raw) {
		return fmt.Errorf("%w: %w", tts.ErrVoiceUnavailable, ue)
	}
	return ue
}

func isVoiceRestricted(body []byte) bool {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Detail.Status == freeUserRestricted {
		return true
	}
	return bytes.Contains(body, []byte(freeUserRestricted))
}

// contentTypeFor maps an ElevenLabs output_format to a MIME type.
func contentTypeFor(format string) string {
	switch {
	case format == "":
		return ""
	case strings.HasPrefix(format, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(format, "pcm"):
		return "audio/pcm"
	case strings.HasPrefix(format, "ulaw"):
		return "audio/basic"
	case strings.HasPrefix(format, "opus"):
		return "audio/opus"
	default:
		return "application/octet-stream"
	}
}

// ---- WebSocket transport ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// synthesizeStream sends the whole script over stream-input and concatenates
// the returned chunks.
func (p *Provider) synthesizeStream(ctx context.Context, text, voiceID string) (*tts.Audio, error) {
	wsURL, err := p.streamURL(voiceID)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(16 << 20)

	// ElevenLabs requires a non-empty first text value.
	vs := p.settings
	msgs := []textMessage{
		{Text: " ", VoiceSettings: &vs, XiAPIKey: p.apiKey},
		{Text: text + " "},
		{Text: ""}, // flush
	}
	for _, m := range msgs {
		b, _ := json.Marshal(m)
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return nil, fmt.Errorf("elevenlabs: stream write: %w", err)
		}
	}

	var buf bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure && buf.Len() > 0 {
				break
			}
			if reason := closeReason(err); reason != "" && strings.Contains(reason, freeUserRestricted) {
				return nil, fmt.Errorf("elevenlabs: stream: %w", tts.ErrVoiceUnavailable)
			}
			return nil, fmt.Errorf("elevenlabs: stream read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			ue := &tts.UpstreamError{Provider: "elevenlabs", Status: http.StatusBadGateway, Body: resp.Error + ": " + resp.Message}
			if strings.Contains(resp.Error, freeUserRestricted) || strings.Contains(resp.Message, freeUserRestricted) {
				return nil, fmt.Errorf("elevenlabs: stream: %w: %w", tts.ErrVoiceUnavailable, ue)
			}
			return nil, fmt.Errorf("elevenlabs: stream: %w", ue)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: stream decode: %w", err)
			}
			buf.Write(chunk)
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	ct := contentTypeFor(p.outputFormat)
	if ct == "" {
		ct = "audio/mpeg"
	}
	return &tts.Audio{Data: buf.Bytes(), ContentType: ct}, nil
}

func closeReason(err error) string {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}

// streamURL derives the stream-input WebSocket URL from the base URL.
func (p *Provider) streamURL(voiceID string) (string, error) {
	u, err := url.Parse(p.baseURL + fmt.Sprintf(streamPathFmt, url.PathEscape(voiceID)))
	if err != nil {
		return "", fmt.Errorf("elevenlabs: stream url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("model_id", p.model)
	if p.outputFormat != "" {
		q.Set("output_format", p.outputFormat)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ListVoices returns all voices available from ElevenLabs for the configured
// API key, in the order ElevenLabs lists them.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", classifyError(resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	voices, err := parseVoicesResponse(data)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return voices, nil
}

// parseVoicesResponse parses a raw /v1/voices body.
func parseVoicesResponse(data []byte) ([]tts.Voice, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		voices = append(voices, tts.Voice{ID: v.VoiceID, Name: v.Name, Category: v.Category})
	}
	return voices, nil
}

var _ tts.Provider = (*Provider)(nil)
