package coqui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/spotcraft/pkg/provider/tts"
)

var fakeWAV = []byte("RIFF\x24\x00\x00\x00WAVEfmt ")

// mustNew is a test helper that calls New and fails the test on error.
func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002/")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q, want trailing slash trimmed", p.serverURL)
		}
		if p.language != defaultLanguage {
			t.Errorf("language = %q, want %q", p.language, defaultLanguage)
		}
		if p.apiMode != APIModeStandard {
			t.Errorf("apiMode = %q, want %q", p.apiMode, APIModeStandard)
		}
		if p.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
		}
	})

	t.Run("options", func(t *testing.T) {
		p := mustNew(t, "http://localhost:8002", WithLanguage("de"), WithTimeout(5*time.Second), WithAPIMode(APIModeXTTS))
		if p.language != "de" || p.httpClient.Timeout != 5*time.Second || p.apiMode != APIModeXTTS {
			t.Errorf("options not applied: %+v", p)
		}
	})

	t.Run("empty url", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Error("expected error for empty server URL")
		}
	})

	t.Run("bad mode", func(t *testing.T) {
		if _, err := New("http://x", WithAPIMode("grpc")); err == nil {
			t.Error("expected error for unknown api mode")
		}
	})
}

func TestSynthesize_StandardAPI(t *testing.T) {
	t.Parallel()

	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiTTSEndpoint || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		gotQuery = map[string]string{"text": q.Get("text"), "speaker_id": q.Get("speaker_id"), "language_id": q.Get("language_id")}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(fakeWAV)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	audio, err := p.Synthesize(context.Background(), "Hello world.", "p225")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio.Data) != string(fakeWAV) {
		t.Errorf("data = %q", audio.Data)
	}
	if audio.ContentType != "audio/wav" {
		t.Errorf("content type = %q", audio.ContentType)
	}
	want := map[string]string{"text": "Hello world.", "speaker_id": "p225", "language_id": "en"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	t.Parallel()

	var got ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ttsEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write(fakeWAV)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithLanguage("de"))
	if _, err := p.Synthesize(context.Background(), "Guten Tag.", "Ana Florence"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Text != "Guten Tag." || got.SpeakerWav != "Ana Florence" || got.Language != "de" {
		t.Errorf("request = %+v", got)
	}
}

func TestSynthesize_XTTSRequiresVoice(t *testing.T) {
	p := mustNew(t, "http://localhost:8002", WithAPIMode(APIModeXTTS))
	if _, err := p.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Error("expected error for empty voice in xtts mode")
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	_, err := p.Synthesize(context.Background(), "Hello.", "p225")
	var ue *tts.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if ue.Status != http.StatusInternalServerError || ue.Body != "model crashed" {
		t.Errorf("upstream error = %+v", ue)
	}
	if !strings.HasPrefix(err.Error(), "coqui:") {
		t.Errorf("error %q missing 'coqui:' prefix", err)
	}
}

func TestListVoices_XTTS(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studioSpeakersEndpoint {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"speaker_bob":{"type":"studio"},"speaker_alice":{"type":"studio"}}`))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS))
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].ID != "speaker_alice" || voices[1].ID != "speaker_bob" {
		t.Errorf("voices not sorted: %+v", voices)
	}
	if voices[0].Category != "studio" {
		t.Errorf("category = %q, want studio", voices[0].Category)
	}
}

func TestListVoices_StandardAPI(t *testing.T) {
	t.Parallel()

	t.Run("multi-speaker model", func(t *testing.T) {
		t.Parallel()
		data, _ := json.Marshal(detailsResponse{ModelName: "tts_models/en/vctk/vits", Speakers: []string{"p227", "p225", "p226"}})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(data)
		}))
		defer srv.Close()

		voices, err := mustNew(t, srv.URL).ListVoices(context.Background())
		if err != nil {
			t.Fatalf("ListVoices: %v", err)
		}
		wantIDs := []string{"p225", "p226", "p227"}
		if len(voices) != len(wantIDs) {
			t.Fatalf("got %d voices, want %d", len(voices), len(wantIDs))
		}
		for i, v := range voices {
			if v.ID != wantIDs[i] || v.Category != "speaker" {
				t.Errorf("voices[%d] = %+v", i, v)
			}
		}
	})

	t.Run("single-speaker model", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"model_name":"tts_models/en/ljspeech/vits","speakers":null}`))
		}))
		defer srv.Close()

		voices, err := mustNew(t, srv.URL).ListVoices(context.Background())
		if err != nil {
			t.Fatalf("ListVoices: %v", err)
		}
		if len(voices) != 1 || voices[0].ID != "tts_models/en/ljspeech/vits" || voices[0].Category != "single-speaker" {
			t.Errorf("voices = %+v", voices)
		}
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal error", http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := mustNew(t, srv.URL).ListVoices(context.Background())
		if err == nil {
			t.Fatal("expected error on server failure, got nil")
		}
		if !strings.Contains(err.Error(), "coqui:") {
			t.Errorf("error %q missing 'coqui:' prefix", err.Error())
		}
	})
}

func TestListVoices_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := p.ListVoices(ctx); err == nil {
		t.Fatal("expected error on context timeout, got nil")
	}
}
