// Package adclient is a Go client for the spotcraft HTTP API.
//
// It covers the three collaborators of the ad-building flow: script drafting
// ([Client.GenerateScript], [Client.ShortenScript]), the voice catalogue
// ([Client.ListVoices]) and speech rendering ([Client.Synthesize]). Every
// error wraps exactly one of the package sentinels so callers can branch with
// [errors.Is].
package adclient

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
)

var (
	// ErrValidation means the request was rejected before or by the server
	// because a required input is missing or malformed.
	ErrValidation = errors.New("adclient: invalid request")

	// ErrConfig means the server is missing provider credentials.
	ErrConfig = errors.New("adclient: server not configured")

	// ErrNetwork means the server could not be reached.
	ErrNetwork = errors.New("adclient: network error")

	// ErrUpstream means the server or its provider failed.
	ErrUpstream = errors.New("adclient: upstream error")

	// ErrVoiceUnavailable means the selected voice is restricted for the
	// provider account tier.
	ErrVoiceUnavailable = errors.New("adclient: voice unavailable")
)

const defaultTimeout = 90 * time.Second

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// Unwrap returns the sentinel matching the error code.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "VALIDATION_ERROR":
		return ErrValidation
	case "CONFIG_ERROR":
		return ErrConfig
	case "FREE_USER_RESTRICTED":
		return ErrVoiceUnavailable
	}
	if e.Status == http.StatusBadRequest {
		return ErrValidation
	}
	return ErrUpstream
}

// Voice is one entry of the provider's voice catalogue.
type Voice struct {
	ID       string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Script is a drafted or shortened script with its duration verdict.
type Script struct {
	Script            string  `json:"script"`
	EstimatedDuration float64 `json:"estimatedDuration"`
	Verdict           string  `json:"verdict"`
	Margin            float64 `json:"margin"`
	Message           string  `json:"message"`
}

// DurationCheck is the server's estimate for a script. Verdict, Margin and
// Message are only set when a target was sent.
type DurationCheck struct {
	Duration float64  `json:"duration"`
	Verdict  string   `json:"verdict,omitempty"`
	Margin   *float64 `json:"margin,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// Settings are the server's selectable ad lengths and voice preview text.
type Settings struct {
	Durations  []int  `json:"durations"`
	SampleText string `json:"sampleText"`
}

// Audio is a rendered clip.
type Audio struct {
	Data        []byte
	ContentType string
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// Client talks to one spotcraft server. It is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a Client for the server at baseURL, for example
// "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: base URL %q must be absolute", ErrValidation, baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: defaultTimeout}}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// GenerateScript drafts a script for brand of about seconds length.
func (c *Client) GenerateScript(ctx context.Context, brand, description string, seconds int) (*Script, error) {
	if strings.TrimSpace(brand) == "" || strings.TrimSpace(description) == "" || seconds <= 0 {
		return nil, fmt.Errorf("%w: brand name, description and duration are required", ErrValidation)
	}
	var out Script
	err := c.do(ctx, "generate script", http.MethodPost, "/api/generate-script", map[string]any{
		"brandName":   brand,
		"description": description,
		"duration":    seconds,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ShortenScript asks the server to cut script down to seconds.
func (c *Client) ShortenScript(ctx context.Context, script string, seconds int) (*Script, error) {
	if strings.TrimSpace(script) == "" || seconds <= 0 {
		return nil, fmt.Errorf("%w: script and duration are required", ErrValidation)
	}
	var out Script
	err := c.do(ctx, "shorten script", http.MethodPost, "/api/shorten-script", map[string]any{
		"script":   script,
		"duration": seconds,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckDuration asks the server for an estimate. A zero seconds skips the
// verdict.
func (c *Client) CheckDuration(ctx context.Context, script string, seconds int) (*DurationCheck, error) {
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("%w: script is required", ErrValidation)
	}
	body := map[string]any{"script": script}
	if seconds > 0 {
		body["duration"] = seconds
	}
	var out DurationCheck
	if err := c.do(ctx, "check duration", http.MethodPost, "/api/check-script-duration", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListVoices returns the voice catalogue in provider order. The slice may be
// empty.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	var out struct {
		Voices []Voice `json:"voices"`
	}
	if err := c.do(ctx, "list voices", http.MethodGet, "/api/get-voices", nil, &out); err != nil {
		return nil, err
	}
	if out.Voices == nil {
		out.Voices = []Voice{}
	}
	return out.Voices, nil
}

// Synthesize renders script with voiceID and decodes the base64 payload.
func (c *Client) Synthesize(ctx context.Context, script, voiceID string) (*Audio, error) {
	if strings.TrimSpace(script) == "" || strings.TrimSpace(voiceID) == "" {
		return nil, fmt.Errorf("%w: script and voice ID are required", ErrValidation)
	}
	var out struct {
		AudioContent string `json:"audioContent"`
		ContentType  string `json:"contentType"`
	}
	err := c.do(ctx, "synthesize", http.MethodPost, "/api/generate-audio", map[string]any{
		"script":  script,
		"voiceId": voiceID,
	}, &out)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(out.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("adclient: synthesize: %w: audio is not base64: %w", ErrUpstream, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("adclient: synthesize: %w: empty audio", ErrUpstream)
	}
	ct := out.ContentType
	if ct == "" {
		ct = "audio/mpeg"
	}
	return &Audio{Data: data, ContentType: ct}, nil
}

// Durations returns the server's selectable lengths and sample text.
func (c *Client) Durations(ctx context.Context) (*Settings, error) {
	var out Settings
	if err := c.do(ctx, "durations", http.MethodGet, "/api/durations", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("adclient: %s: %w: %w", op, ErrValidation, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), body)
	if err != nil {
		return fmt.Errorf("adclient: %s: %w: %w", op, ErrValidation, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("adclient: %s: %w: %w", op, ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("adclient: %s: %w: read body: %w", op, ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("adclient: %s: %w", op, parseAPIError(resp.StatusCode, raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("adclient: %s: %w: decode response: %w", op, ErrUpstream, err)
	}
	return nil
}

func parseAPIError(status int, raw []byte) *APIError {
	e := &APIError{Status: status}
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		e.Code, e.Message = body.Code, body.Error
		return e
	}
	e.Message = strings.TrimSpace(string(raw))
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
