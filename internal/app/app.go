// Package app wires all spotcraft subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the secrets chain,
// provider source, telemetry and HTTP router, Run serves the API and metrics
// listeners, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithSecretStore,
// WithRegistry, WithMetrics). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/spotcraft/internal/api"
	"github.com/MrWong99/spotcraft/internal/config"
	"github.com/MrWong99/spotcraft/internal/health"
	"github.com/MrWong99/spotcraft/internal/observe"
	"github.com/MrWong99/spotcraft/internal/secrets"
)

const (
	readHeaderTimeout = 10 * time.Second
	drainTimeout      = 15 * time.Second
)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	registry  *config.Registry
	store     secrets.Store
	providers *providerSource
	telemetry *observe.Telemetry
	metrics   *observe.Metrics
	level     *slog.LevelVar
	api       *api.Server
	handler   http.Handler

	apiSrv     *http.Server
	metricsSrv *http.Server

	mu        sync.Mutex
	listeners []net.Listener

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSecretStore injects a secrets store instead of building the configured
// chain.
func WithSecretStore(s secrets.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRegistry injects a provider registry instead of the built-in one.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics injects metrics instead of initialising the OTel providers.
// /metrics is not served in that case.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets config reloads change the level of the caller's logger.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// New creates an App by wiring all subsystems together. On error every
// resource opened so far is released.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.level == nil {
		a.level = new(slog.LevelVar)
		a.level.Set(cfg.Server.LogLevel.Slog())
	}

	if err := a.init(ctx); err != nil {
		a.runClosers(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if a.registry == nil {
		a.registry = config.NewRegistry()
		RegisterBuiltinProviders(a.registry)
	}

	// ── 1. Secrets ───────────────────────────────────────────────────────
	if a.store == nil {
		chain, closers, err := BuildSecrets(ctx, a.cfg.Secrets)
		a.closers = append(a.closers, closers...)
		if err != nil {
			return fmt.Errorf("app: init secrets: %w", err)
		}
		a.store = chain
		slog.Info("secrets chain ready", "sources", chain.Sources())
	}

	// ── 2. Telemetry ─────────────────────────────────────────────────────
	if a.metrics == nil {
		tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "spotcraft"})
		if err != nil {
			return fmt.Errorf("app: init telemetry: %w", err)
		}
		a.telemetry = tel
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tel.Shutdown(ctx)
		})
		if a.metrics, err = observe.NewMetrics(tel.MeterProvider()); err != nil {
			return fmt.Errorf("app: init metrics: %w", err)
		}
	}

	// ── 3. Providers ─────────────────────────────────────────────────────
	a.providers = newProviderSource(a.registry, a.store, a.metrics, a.cfg.Providers, a.cfg.Breaker)

	// ── 4. HTTP ──────────────────────────────────────────────────────────
	checks := []health.Checker{{Name: "providers", Check: a.providers.check}}
	if p, ok := a.store.(secrets.Pinger); ok {
		checks = append(checks, health.Checker{Name: "secrets", Check: p.Ping})
	}

	apiOpts := []api.Option{
		api.WithMetrics(a.metrics),
		api.WithHealth(health.New(checks...)),
		api.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		api.WithRequestTimeout(a.cfg.Server.RequestTimeout),
	}
	if a.telemetry != nil && a.cfg.Server.MetricsAddr == "" {
		apiOpts = append(apiOpts, api.WithMetricsHandler(a.telemetry.Handler()))
	}
	a.api = api.New(a.providers, a.cfg.Script, apiOpts...)
	a.handler = a.api.Handler()

	a.apiSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	if a.telemetry != nil && a.cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", a.telemetry.Handler())
		a.metricsSrv = &http.Server{
			Addr:              a.cfg.Server.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		}
	}
	return nil
}

// Handler returns the API router.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves the API (and the metrics listener, when configured) until ctx is
// cancelled, then drains in-flight requests. A clean stop returns nil.
func (a *App) Run(ctx context.Context) error {
	servers := []*http.Server{a.apiSrv}
	if a.metricsSrv != nil {
		servers = append(servers, a.metricsSrv)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			a.closeListeners()
			return fmt.Errorf("app: listen %s: %w", srv.Addr, err)
		}
		a.mu.Lock()
		a.listeners = append(a.listeners, ln)
		a.mu.Unlock()
		slog.Info("listening", "addr", ln.Addr().String())

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(drainCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// Addrs returns the bound listener addresses once Run has started.
func (a *App) Addrs() []net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]net.Addr, len(a.listeners))
	for i, ln := range a.listeners {
		out[i] = ln.Addr()
	}
	return out
}

func (a *App) closeListeners() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ln := range a.listeners {
		_ = ln.Close()
	}
	a.listeners = nil
}

// Reload applies a changed config. Log level, script settings and provider
// entries take effect immediately; everything else is reported as needing a
// restart.
func (a *App) Reload(old, next *config.Config) {
	d := config.Diff(old, next)
	if d.LogLevelChanged {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.ScriptChanged {
		a.api.SetScript(next.Script)
		slog.Info("script settings reloaded", "durations", next.Script.Durations)
	}
	if d.ProvidersChanged {
		a.providers.setEntries(next.Providers)
		slog.Info("provider settings reloaded", "llm", next.Providers.LLM.Name, "tts", next.Providers.TTS.Name)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "settings", d.RestartRequired)
	}
}

// Shutdown stops the HTTP servers and runs the closers in order. It is safe
// to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for _, srv := range []*http.Server{a.apiSrv, a.metricsSrv} {
			if srv == nil {
				continue
			}
			if err := srv.Shutdown(ctx); err != nil {
				slog.Warn("server shutdown error", "addr", srv.Addr, "err", err)
			}
		}
		a.closeListeners()
		shutdownErr = a.runClosers(ctx)

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) runClosers(ctx context.Context) error {
	for i, closer := range a.closers {
		select {
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
			return ctx.Err()
		default:
		}
		if err := closer(); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
	return nil
}
