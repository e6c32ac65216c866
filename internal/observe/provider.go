package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is reported in telemetry. Default: "spotcraft".
	ServiceName string

	ServiceVersion string

	// TraceExporter is optional. When nil spans are recorded but not exported.
	TraceExporter sdktrace.SpanExporter

	// Registry receives the Prometheus collectors. When nil a fresh registry
	// is created, so repeated calls never collide on registration.
	Registry *prometheus.Registry
}

// Telemetry is the result of [InitProvider].
type Telemetry struct {
	registry *prometheus.Registry
	mp       *sdkmetric.MeterProvider
	shutdown []func(context.Context) error
}

// InitProvider installs a [sdkmetric.MeterProvider] backed by a Prometheus
// exporter and a [sdktrace.TracerProvider] as the global OTel providers.
// Call [Telemetry.Shutdown] before exit to flush exporters.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "spotcraft"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	promExp, err := promexporter.New(promexporter.WithRegisterer(cfg.Registry))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return &Telemetry{
		registry: cfg.Registry,
		mp:       mp,
		shutdown: []func(context.Context) error{mp.Shutdown, tp.Shutdown},
	}, nil
}

// Handler serves the Prometheus exposition format for the registry.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{Registry: t.registry})
}

// MeterProvider returns the installed meter provider, for use with [NewMetrics].
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.mp
}

// Shutdown flushes and closes both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
