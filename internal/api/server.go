// Package api serves the spotcraft HTTP API.
//
// Handlers are thin: they validate a few request fields, resolve the
// configured provider through a [Backend], make one upstream call and reshape
// the result. Every error is mapped to a JSON body {"error", "code"} by
// [classify].
package api

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/spotcraft/internal/config"
	"github.com/MrWong99/spotcraft/internal/health"
	"github.com/MrWong99/spotcraft/internal/observe"
	"github.com/MrWong99/spotcraft/pkg/provider/llm"
	"github.com/MrWong99/spotcraft/pkg/provider/tts"
)

// maxBodyBytes caps request bodies. Scripts are short.
const maxBodyBytes = 1 << 20

// Backend hands out the providers for one request. Implementations resolve
// API keys on every call, so a missing secret surfaces per request.
type Backend interface {
	LLM(ctx context.Context) (llm.Provider, error)
	TTS(ctx context.Context) (tts.Provider, error)
}

// Server holds the handler dependencies. Script settings can be swapped at
// runtime with [Server.SetScript].
type Server struct {
	backend Backend
	script  atomic.Pointer[config.ScriptConfig]

	metrics        *observe.Metrics
	health         *health.Handler
	metricsHandler http.Handler
	corsOrigins    []string
	timeout        time.Duration
}

// Option configures a [Server].
type Option func(*Server)

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics on the API router.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithCORSOrigins sets the allowed browser origins. "*" allows any.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRequestTimeout bounds every request. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// New creates a [Server].
func New(b Backend, script config.ScriptConfig, opts ...Option) *Server {
	s := &Server{
		backend:     b,
		corsOrigins: []string{"*"},
	}
	s.script.Store(&script)
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// SetScript replaces the script settings used by subsequent requests.
func (s *Server) SetScript(sc config.ScriptConfig) {
	s.script.Store(&sc)
}

func (s *Server) scriptConfig() config.ScriptConfig {
	return *s.script.Load()
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(s.cors)
	r.Use(observe.Middleware(s.metrics))

	if s.health != nil {
		s.health.Register(r)
	}
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.bound)
		r.Post("/generate-script", s.handleGenerateScript)
		r.Post("/shorten-script", s.handleShortenScript)
		r.Post("/check-script-duration", s.handleCheckDuration)
		r.Get("/get-voices", s.handleGetVoices)
		r.Post("/generate-audio", s.handleGenerateAudio)
		r.Get("/durations", s.handleDurations)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r
}

// cors sets CORS headers on every response and answers preflight requests.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		w.Header().Set("Access-Control-Expose-Headers", observe.CorrelationHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) string {
	if slices.Contains(s.corsOrigins, "*") {
		return "*"
	}
	if origin == "" {
		return ""
	}
	for _, o := range s.corsOrigins {
		if strings.EqualFold(strings.TrimSuffix(o, "/"), origin) {
			return origin
		}
	}
	return ""
}

// bound applies the request timeout and body limit.
func (s *Server) bound(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		if s.timeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
			defer cancel()
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
