package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/spotcraft/internal/config"
	"github.com/MrWong99/spotcraft/internal/health"
	"github.com/MrWong99/spotcraft/internal/observe"
	"github.com/MrWong99/spotcraft/internal/resilience"
	"github.com/MrWong99/spotcraft/internal/secrets"
	"github.com/MrWong99/spotcraft/pkg/provider/llm"
	llmmock "github.com/MrWong99/spotcraft/pkg/provider/llm/mock"
	"github.com/MrWong99/spotcraft/pkg/provider/tts"
	ttsmock "github.com/MrWong99/spotcraft/pkg/provider/tts/mock"
)

type fakeBackend struct {
	llm    *llmmock.Provider
	tts    *ttsmock.Provider
	llmErr error
	ttsErr error
}

func (b *fakeBackend) LLM(context.Context) (llm.Provider, error) {
	if b.llmErr != nil {
		return nil, b.llmErr
	}
	return b.llm, nil
}

func (b *fakeBackend) TTS(context.Context) (tts.Provider, error) {
	if b.ttsErr != nil {
		return nil, b.ttsErr
	}
	return b.tts, nil
}

func testScript() config.ScriptConfig {
	return config.ScriptConfig{
		Durations:      []int{15, 30, 45, 60},
		WordsPerMinute: 150,
		Buffer:         1.15,
		Temperature:    0.7,
		SampleText:     "Hello! This is a sample of my voice. How do I sound?",
	}
}

func newTestServer(t *testing.T, b *fakeBackend, opts ...Option) http.Handler {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if b.llm == nil {
		b.llm = &llmmock.Provider{}
	}
	if b.tts == nil {
		b.tts = &ttsmock.Provider{}
	}
	return New(b, testScript(), append([]Option{WithMetrics(m)}, opts...)...).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestGenerateScript(t *testing.T) {
	b := &fakeBackend{llm: &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `"` + words(60) + `"`},
	}}
	h := newTestServer(t, b)

	rec := do(t, h, "POST", "/api/generate-script",
		`{"brandName":"Acme","description":"fast shipping","duration":"30"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decodeBody[ScriptResponse](t, rec)
	if got.Script != words(60) {
		t.Errorf("script = %q", got.Script)
	}
	if got.EstimatedDuration != 27.6 {
		t.Errorf("estimatedDuration = %v, want 27.6", got.EstimatedDuration)
	}
	if got.Verdict != "fits" || got.Margin != -2.4 {
		t.Errorf("verdict = %q margin = %v, want fits -2.4", got.Verdict, got.Margin)
	}
	if got.Message != "Script duration: 28 seconds (fits within 30 second limit)" {
		t.Errorf("message = %q", got.Message)
	}

	calls := b.llm.Calls()
	if len(calls) != 1 {
		t.Fatalf("llm called %d times, want 1", len(calls))
	}
	req := calls[0].Req
	if req.Temperature != 0.7 {
		t.Errorf("temperature = %v, want 0.7", req.Temperature)
	}
	if want := "Create a 30-second radio ad script for Acme. Here's the description: fast shipping"; req.Messages[0].Content != want {
		t.Errorf("user prompt = %q", req.Messages[0].Content)
	}
}

func TestGenerateScript_Overflow(t *testing.T) {
	b := &fakeBackend{llm: &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: words(100)},
	}}
	rec := do(t, newTestServer(t, b), "POST", "/api/generate-script",
		`{"brandName":"Acme","description":"fast shipping","duration":30}`)
	got := decodeBody[ScriptResponse](t, rec)
	if got.Verdict != "overflow" {
		t.Errorf("verdict = %q, want overflow", got.Verdict)
	}
	if got.EstimatedDuration != 46 || got.Margin != 16 {
		t.Errorf("estimate = %v margin = %v, want 46 and 16", got.EstimatedDuration, got.Margin)
	}
	if !strings.HasPrefix(got.Message, "Script is too long! Estimated duration: 46 seconds.") {
		t.Errorf("message = %q", got.Message)
	}
}

func TestGenerateScript_Errors(t *testing.T) {
	tests := []struct {
		name       string
		backend    *fakeBackend
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing brand",
			backend:    &fakeBackend{},
			body:       `{"description":"x","duration":30}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
		},
		{
			name:       "unsupported duration",
			backend:    &fakeBackend{},
			body:       `{"brandName":"Acme","description":"x","duration":20}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
		},
		{
			name:       "fractional duration",
			backend:    &fakeBackend{},
			body:       `{"brandName":"Acme","description":"x","duration":"30.5"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
		},
		{
			name:       "malformed json",
			backend:    &fakeBackend{},
			body:       `{"brandName":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
		},
		{
			name:       "missing key",
			backend:    &fakeBackend{llmErr: fmt.Errorf("resolve OPENAI_API_KEY: %w", secrets.ErrNotFound)},
			body:       `{"brandName":"Acme","description":"x","duration":30}`,
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeConfig,
		},
		{
			name:       "upstream failure",
			backend:    &fakeBackend{llm: &llmmock.Provider{CompleteErr: errors.New("openai: 500")}},
			body:       `{"brandName":"Acme","description":"x","duration":30}`,
			wantStatus: http.StatusBadGateway,
			wantCode:   CodeUpstream,
		},
		{
			name:       "empty reply",
			backend:    &fakeBackend{llm: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  "}}},
			body:       `{"brandName":"Acme","description":"x","duration":30}`,
			wantStatus: http.StatusBadGateway,
			wantCode:   CodeUpstream,
		},
		{
			name:       "breaker open",
			backend:    &fakeBackend{llm: &llmmock.Provider{CompleteErr: fmt.Errorf("resilience: llm openai: %w", resilience.ErrCircuitOpen)}},
			body:       `{"brandName":"Acme","description":"x","duration":30}`,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   CodeUpstreamUnavailable,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, newTestServer(t, tc.backend), "POST", "/api/generate-script", tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body)
			}
			got := decodeBody[ErrorBody](t, rec)
			if got.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tc.wantCode)
			}
			if got.Error == "" {
				t.Error("error message is empty")
			}
			if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
				t.Error("error response lacks CORS header")
			}
		})
	}
}

func TestGenerateScript_ValidationSkipsUpstream(t *testing.T) {
	b := &fakeBackend{llm: &llmmock.Provider{}}
	do(t, newTestServer(t, b), "POST", "/api/generate-script", `{"brandName":"Acme"}`)
	if n := len(b.llm.Calls()); n != 0 {
		t.Errorf("llm called %d times on invalid input", n)
	}
}

func TestShortenScript(t *testing.T) {
	b := &fakeBackend{llm: &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: words(30)},
	}}
	rec := do(t, newTestServer(t, b), "POST", "/api/shorten-script",
		fmt.Sprintf(`{"script":%q,"duration":15}`, words(80)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decodeBody[ScriptResponse](t, rec)
	if got.Script != words(30) || got.Verdict != "fits" {
		t.Errorf("got %+v", got)
	}
	req := b.llm.Calls()[0].Req
	if req.Messages[0].Content != words(80) {
		t.Error("shorten did not send the current script")
	}
	if !strings.Contains(req.SystemPrompt, "at most 15 seconds") {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
}

func TestCheckScriptDuration(t *testing.T) {
	h := newTestServer(t, &fakeBackend{})

	t.Run("estimate only", func(t *testing.T) {
		rec := do(t, h, "POST", "/api/check-script-duration", fmt.Sprintf(`{"script":%q}`, words(60)))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		raw := decodeBody[map[string]any](t, rec)
		if raw["duration"] != 27.6 {
			t.Errorf("duration = %v, want 27.6", raw["duration"])
		}
		for _, k := range []string{"verdict", "margin", "message"} {
			if _, ok := raw[k]; ok {
				t.Errorf("unexpected field %q without a target", k)
			}
		}
	})

	t.Run("with target", func(t *testing.T) {
		rec := do(t, h, "POST", "/api/check-script-duration", fmt.Sprintf(`{"script":%q,"duration":"15"}`, words(60)))
		got := decodeBody[CheckDurationResponse](t, rec)
		if got.Verdict != "overflow" || got.Margin == nil || *got.Margin != 12.6 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("exact fit", func(t *testing.T) {
		// 65 words at 150 wpm with a 1.15 buffer is 29.9 s.
		rec := do(t, h, "POST", "/api/check-script-duration", fmt.Sprintf(`{"script":%q,"duration":30}`, words(65)))
		got := decodeBody[CheckDurationResponse](t, rec)
		if got.Verdict != "fits" {
			t.Errorf("verdict = %q, want fits", got.Verdict)
		}
	})

	t.Run("missing script", func(t *testing.T) {
		rec := do(t, h, "POST", "/api/check-script-duration", `{"script":"   "}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestGetVoices(t *testing.T) {
	b := &fakeBackend{tts: &ttsmock.Provider{ListVoicesResult: []tts.Voice{
		{ID: "21m00Tcm4TlvDq8ikWAM", Name: "Rachel", Category: "premade"},
		{ID: "AZnzlk1XvdvUeBnXmlld", Name: "Domi", Category: "premade"},
	}}}
	rec := do(t, newTestServer(t, b), "GET", "/api/get-voices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decodeBody[VoicesResponse](t, rec)
	if len(got.Voices) != 2 || got.Voices[0].VoiceID != "21m00Tcm4TlvDq8ikWAM" || got.Voices[1].Name != "Domi" {
		t.Errorf("voices = %+v", got.Voices)
	}
}

func TestGetVoices_Empty(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeBackend{}), "GET", "/api/get-voices", "")
	if !strings.Contains(rec.Body.String(), `"voices":[]`) {
		t.Errorf("body = %s, want an empty array", rec.Body)
	}
}

func TestGenerateAudio(t *testing.T) {
	b := &fakeBackend{tts: &ttsmock.Provider{
		SynthesizeResult: &tts.Audio{Data: []byte("ID3-mp3-bytes"), ContentType: "audio/mpeg"},
	}}
	rec := do(t, newTestServer(t, b), "POST", "/api/generate-audio", `{"script":"Acme. Fast.","voiceId":"v1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decodeBody[AudioResponse](t, rec)
	data, err := base64.StdEncoding.DecodeString(got.AudioContent)
	if err != nil {
		t.Fatalf("audioContent is not base64: %v", err)
	}
	if string(data) != "ID3-mp3-bytes" {
		t.Errorf("audio = %q", data)
	}
	calls := b.tts.Calls()
	if len(calls) != 1 || calls[0].VoiceID != "v1" || calls[0].Text != "Acme. Fast." {
		t.Errorf("synthesize calls = %+v", calls)
	}
}

func TestGenerateAudio_Errors(t *testing.T) {
	restricted := fmt.Errorf("elevenlabs: synthesize: %w: %w", tts.ErrVoiceUnavailable,
		&tts.UpstreamError{Provider: "elevenlabs", Status: 402, Body: "free_users_not_allowed"})

	tests := []struct {
		name       string
		backend    *fakeBackend
		body       string
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"missing voice", &fakeBackend{}, `{"script":"hi"}`, http.StatusBadRequest, CodeValidation, "script and voice ID are required"},
		{"restricted voice", &fakeBackend{tts: &ttsmock.Provider{SynthesizeErr: restricted}}, `{"script":"hi","voiceId":"v"}`,
			http.StatusForbidden, CodeFreeUserRestricted, VoiceUnavailableMessage},
		{"missing key", &fakeBackend{ttsErr: secrets.ErrNotFound}, `{"script":"hi","voiceId":"v"}`,
			http.StatusInternalServerError, CodeConfig, ""},
		{"upstream", &fakeBackend{tts: &ttsmock.Provider{SynthesizeErr: &tts.UpstreamError{Provider: "elevenlabs", Status: 500, Body: "boom"}}},
			`{"script":"hi","voiceId":"v"}`, http.StatusBadGateway, CodeUpstream, "failed to generate audio: elevenlabs: upstream status 500: boom"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, newTestServer(t, tc.backend), "POST", "/api/generate-audio", tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			got := decodeBody[ErrorBody](t, rec)
			if got.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tc.wantCode)
			}
			if tc.wantMsg != "" && got.Error != tc.wantMsg {
				t.Errorf("error = %q, want %q", got.Error, tc.wantMsg)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	rec := do(t, newTestServer(t, &fakeBackend{}), "GET", "/api/durations", "")
	got := decodeBody[DurationsResponse](t, rec)
	if fmt.Sprint(got.Durations) != "[15 30 45 60]" {
		t.Errorf("durations = %v", got.Durations)
	}
	if got.SampleText == "" {
		t.Error("sample text missing")
	}
}

func TestSetScript(t *testing.T) {
	b := &fakeBackend{}
	b.llm, b.tts = &llmmock.Provider{}, &ttsmock.Provider{}
	srv := New(b, testScript())
	h := srv.Handler()

	sc := testScript()
	sc.Durations = []int{10, 20}
	srv.SetScript(sc)

	got := decodeBody[DurationsResponse](t, do(t, h, "GET", "/api/durations", ""))
	if fmt.Sprint(got.Durations) != "[10 20]" {
		t.Errorf("durations = %v after SetScript", got.Durations)
	}
}

func TestCORS(t *testing.T) {
	t.Run("wildcard preflight", func(t *testing.T) {
		rec := do(t, newTestServer(t, &fakeBackend{}), "OPTIONS", "/api/generate-audio", "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("allow origin = %q", got)
		}
		if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "content-type") {
			t.Error("content-type not in allowed headers")
		}
	})

	t.Run("allow list", func(t *testing.T) {
		h := newTestServer(t, &fakeBackend{}, WithCORSOrigins([]string{"https://ads.example.com"}))

		r := httptest.NewRequest("GET", "/api/durations", nil)
		r.Header.Set("Origin", "https://ads.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://ads.example.com" {
			t.Errorf("allow origin = %q", got)
		}

		r = httptest.NewRequest("GET", "/api/durations", nil)
		r.Header.Set("Origin", "https://evil.example.com")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("allow origin = %q for a foreign origin", got)
		}
	})
}

func TestHealthAndMetricsMounts(t *testing.T) {
	h := newTestServer(t, &fakeBackend{},
		WithHealth(health.New()),
		WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})),
	)
	if rec := do(t, h, "GET", "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/metrics", ""); rec.Body.String() != "# metrics" {
		t.Errorf("/metrics body = %q", rec.Body)
	}
	if rec := do(t, h, "GET", "/api/nope", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d", rec.Code)
	}
}
