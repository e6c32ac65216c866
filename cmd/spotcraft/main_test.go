package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	zkr "github.com/zalando/go-keyring"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/spotcraft/internal/api"
	"github.com/MrWong99/spotcraft/internal/config"
	"github.com/MrWong99/spotcraft/internal/observe"
	"github.com/MrWong99/spotcraft/internal/secrets"
	"github.com/MrWong99/spotcraft/pkg/provider/llm"
	llmmock "github.com/MrWong99/spotcraft/pkg/provider/llm/mock"
	"github.com/MrWong99/spotcraft/pkg/provider/tts"
	ttsmock "github.com/MrWong99/spotcraft/pkg/provider/tts/mock"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "word"
	}
	return strings.Join(w, " ")
}

func execute(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errb bytes.Buffer
	code = run(context.Background(), args, &out, &errb)
	return code, out.String(), errb.String()
}

func TestEstimate(t *testing.T) {
	code, out, _ := execute(t, "estimate", "--duration", "30", words(60))
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	for _, want := range []string{
		"Words: 60",
		"Estimated duration: 27.6 seconds",
		"Verdict: fits (margin -2.4 s, max 65 words)",
		"Script duration: 28 seconds (fits within 30 second limit)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEstimate_Strict(t *testing.T) {
	code, out, errOut := execute(t, "estimate", "-d", "15", "--strict", words(60))
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out, "Script is too long! Estimated duration: 28 seconds.") {
		t.Errorf("output = %s", out)
	}
	if !strings.Contains(errOut, errOverflow.Error()) {
		t.Errorf("stderr = %s", errOut)
	}

	if code, _, _ := execute(t, "estimate", "-d", "15", words(60)); code != 0 {
		t.Errorf("without --strict exit code = %d, want 0", code)
	}
}

func TestEstimate_FromFileWithoutBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.txt")
	if err := os.WriteFile(path, []byte(words(75)+" -- !!"), 0o600); err != nil {
		t.Fatal(err)
	}
	code, out, _ := execute(t, "estimate", "--file", path, "--buffer", "1")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(out, "Words: 75") || !strings.Contains(out, "Estimated duration: 30.0 seconds") {
		t.Errorf("output = %s", out)
	}
	if strings.Contains(out, "Verdict") {
		t.Errorf("verdict printed without --duration:\n%s", out)
	}
}

// newTestServer runs the HTTP API over mock providers. The language model
// answers with long words(80) first and words(20) afterwards; the speech
// provider echoes the text it was given.
func newTestServer(t *testing.T) (*httptest.Server, *llmmock.Provider, *ttsmock.Provider) {
	t.Helper()
	var calls atomic.Int32
	lp := &llmmock.Provider{
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if calls.Add(1) == 1 {
				return &llm.CompletionResponse{Content: words(80)}, nil
			}
			return &llm.CompletionResponse{Content: words(20)}, nil
		},
	}
	tp := &ttsmock.Provider{
		ListVoicesResult: []tts.Voice{
			{ID: "21m00Tcm4TlvDq8ikWAM", Name: "Rachel", Category: "premade"},
			{ID: "AZnzlk1XvdvUeBnXmlld", Name: "Domi", Category: "premade"},
		},
		SynthesizeFunc: func(_ context.Context, text, _ string) (*tts.Audio, error) {
			return &tts.Audio{Data: []byte(text), ContentType: "audio/mpeg"}, nil
		},
	}

	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader())))
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	srv := httptest.NewServer(api.New(staticBackend{lp, tp}, cfg.Script, api.WithMetrics(m)).Handler())
	t.Cleanup(srv.Close)
	return srv, lp, tp
}

type staticBackend struct {
	llm llm.Provider
	tts tts.Provider
}

func (b staticBackend) LLM(context.Context) (llm.Provider, error) { return b.llm, nil }
func (b staticBackend) TTS(context.Context) (tts.Provider, error) { return b.tts, nil }

func TestGenerate_ShortensAndRenders(t *testing.T) {
	srv, lp, tp := newTestServer(t)
	outFile := filepath.Join(t.TempDir(), "ad.mp3")

	code, out, errOut := execute(t, "generate",
		"--server", srv.URL,
		"--brand", "Acme",
		"--description", "Fast shipping",
		"--voice", "domi",
		"--out", outFile,
	)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, errOut)
	}
	if n := len(lp.Calls()); n != 2 {
		t.Errorf("llm calls = %d, want draft plus one shortening", n)
	}
	calls := tp.Calls()
	if len(calls) != 1 || calls[0].VoiceID != "AZnzlk1XvdvUeBnXmlld" {
		t.Errorf("tts calls = %+v", calls)
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != words(20) {
		t.Errorf("audio = %q, want the shortened script", data)
	}
	for _, want := range []string{
		"Script duration: 9 seconds (fits within 30 second limit)",
		"Voice: Domi (AZnzlk1XvdvUeBnXmlld)",
		"Audio Generated: Your audio ad has been created successfully!",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestGenerate_TooLongWithoutShortening(t *testing.T) {
	srv, _, tp := newTestServer(t)
	outFile := filepath.Join(t.TempDir(), "ad.mp3")

	code, _, errOut := execute(t, "generate",
		"--server", srv.URL,
		"--brand", "Acme",
		"--description", "Fast shipping",
		"--shorten", "0",
		"--out", outFile,
	)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut, "script too long") {
		t.Errorf("stderr = %s", errOut)
	}
	if len(tp.Calls()) != 0 {
		t.Errorf("tts called %d times for an overflowing script", len(tp.Calls()))
	}
	if _, err := os.Stat(outFile); !os.IsNotExist(err) {
		t.Errorf("audio file written: %v", err)
	}
}

func TestGenerate_RejectsUnsupportedDuration(t *testing.T) {
	srv, lp, _ := newTestServer(t)
	code, _, errOut := execute(t, "generate", "--server", srv.URL, "--brand", "Acme", "--description", "x", "--duration", "20")
	if code != 1 || !strings.Contains(errOut, "unsupported duration") {
		t.Errorf("code = %d, stderr = %s", code, errOut)
	}
	if len(lp.Calls()) != 0 {
		t.Error("script drafted for an unsupported duration")
	}
}

func TestVoices(t *testing.T) {
	srv, _, _ := newTestServer(t)
	code, out, errOut := execute(t, "voices", "--server", srv.URL)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, errOut)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[1], "Rachel") {
		t.Errorf("output =\n%s", out)
	}
}

func TestPickVoice(t *testing.T) {
	if _, err := pickVoice("", nil); err == nil {
		t.Error("empty catalogue accepted")
	}
}

func TestSecrets_Keyring(t *testing.T) {
	zkr.MockInit()
	missing := filepath.Join(t.TempDir(), "config.yaml")
	store := secrets.KeyringStore{Service: config.DefaultKeyringService}

	code, out, errOut := execute(t, "secrets", "set", "--config", missing, "ELEVEN_LABS_API_KEY", "xi-test")
	if code != 0 {
		t.Fatalf("set exit code = %d: %s", code, errOut)
	}
	if strings.Contains(out, "xi-test") {
		t.Errorf("secret value echoed: %q", out)
	}
	if v, err := store.Lookup(context.Background(), "ELEVEN_LABS_API_KEY"); err != nil || v != "xi-test" {
		t.Errorf("keychain value = %q, %v", v, err)
	}

	if code, _, errOut := execute(t, "secrets", "delete", "--config", missing, "ELEVEN_LABS_API_KEY"); code != 0 {
		t.Fatalf("delete exit code = %d: %s", code, errOut)
	}
	if _, err := store.Lookup(context.Background(), "ELEVEN_LABS_API_KEY"); !errors.Is(err, secrets.ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
}

func TestSecrets_RejectsReadOnlySource(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yaml")
	for _, source := range []string{"env", "postgres", "vault"} {
		code, _, errOut := execute(t, "secrets", "set", "--config", missing, "--source", source, "OPENAI_API_KEY", "sk-x")
		if code != 1 || !strings.Contains(errOut, "spotcraft:") {
			t.Errorf("source %s: exit %d, stderr %q", source, code, errOut)
		}
	}
}

func TestSecretValue(t *testing.T) {
	if v, err := secretValue(strings.NewReader("ignored"), []string{"sk-arg"}); err != nil || v != "sk-arg" {
		t.Errorf("arg value = %q, %v", v, err)
	}
	if v, err := secretValue(strings.NewReader("sk-stdin\n"), []string{"-"}); err != nil || v != "sk-stdin" {
		t.Errorf("stdin value = %q, %v", v, err)
	}
	if _, err := secretValue(strings.NewReader(""), nil); err == nil {
		t.Error("empty stdin accepted")
	}
}
