// Package observe provides the observability primitives shared by the
// spotcraft server and CLI: OpenTelemetry metrics, tracing helpers,
// trace-aware logging, and the HTTP middleware that ties them together.
//
// Metrics go through the OpenTelemetry Metrics API. [InitProvider] installs a
// Prometheus exporter bridge so the instruments can be scraped from /metrics.
// [DefaultMetrics] returns a lazily created instance bound to the global
// provider; tests should call [NewMetrics] with their own
// [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all spotcraft metrics.
const meterName = "github.com/MrWong99/spotcraft"

// Metrics holds the OpenTelemetry instruments recorded by spotcraft.
// The underlying OTel types are safe for concurrent use.
type Metrics struct {
	// LLMDuration tracks script generation and shortening latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks speech synthesis and voice listing latency.
	TTSDuration metric.Float64Histogram

	// ProviderRequests counts upstream calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed upstream calls. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// ScriptEstimate records estimated read-aloud durations in seconds.
	// Attribute: target (the requested ad length).
	ScriptEstimate metric.Float64Histogram

	// ScriptVerdicts counts duration policy outcomes. Attribute: verdict.
	ScriptVerdicts metric.Int64Counter

	// HTTPRequestDuration tracks request handling time. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are sized for hosted LLM and TTS round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// estimateBuckets bracket the supported ad lengths.
var estimateBuckets = []float64{
	5, 10, 15, 20, 30, 40, 45, 50, 60, 75, 90, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.LLMDuration, err = m.Float64Histogram("spotcraft.llm.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("spotcraft.tts.duration",
		metric.WithDescription("Latency of text-to-speech requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("spotcraft.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("spotcraft.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	if met.ScriptEstimate, err = m.Float64Histogram("spotcraft.script.estimate",
		metric.WithDescription("Estimated read-aloud duration of checked scripts."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(estimateBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ScriptVerdicts, err = m.Int64Counter("spotcraft.script.verdicts",
		metric.WithDescription("Duration policy outcomes by verdict."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("spotcraft.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderRequest increments the provider request counter.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError increments the provider error counter.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordEstimate records an estimated read-aloud duration. A target of zero
// means the caller did not ask for a policy check.
func (m *Metrics) RecordEstimate(ctx context.Context, seconds float64, target int) {
	m.ScriptEstimate.Record(ctx, seconds,
		metric.WithAttributes(attribute.Int("target", target)),
	)
}

// RecordVerdict increments the verdict counter.
func (m *Metrics) RecordVerdict(ctx context.Context, verdict string) {
	m.ScriptVerdicts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("verdict", verdict)),
	)
}

// ObserveCall records the latency and outcome of one upstream call that
// started at start. kind is "llm" or "tts"; other kinds only update the
// counters.
func (m *Metrics) ObserveCall(ctx context.Context, kind, provider string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	switch kind {
	case "llm":
		m.LLMDuration.Record(ctx, elapsed, attrs)
	case "tts":
		m.TTSDuration.Record(ctx, elapsed, attrs)
	}
	if err != nil {
		m.RecordProviderRequest(ctx, provider, kind, "error")
		m.RecordProviderError(ctx, provider, kind)
		return
	}
	m.RecordProviderRequest(ctx, provider, kind, "ok")
}
