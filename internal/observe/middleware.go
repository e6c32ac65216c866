package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID back to API clients.
const CorrelationHeader = "X-Correlation-ID"

// responseWriter remembers the status the handler wrote.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets [http.ResponseController] reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Middleware traces, measures and logs every API request.
//
// An incoming W3C traceparent is continued, otherwise a new trace starts; the
// trace ID is echoed in [CorrelationHeader] so a failed script or audio
// request can be found in the logs. Behind a chi router the span name and
// the path label use the route pattern, for example
// "POST /api/generate-script", which keeps label cardinality bounded.
// Server errors mark the span as failed and log at warn level.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set(CorrelationHeader, cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			r = r.WithContext(ctx)
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			route := routePattern(r)
			elapsed := time.Since(start)
			span.SetName("HTTP " + r.Method + " " + route)
			span.SetAttributes(
				semconv.HTTPRoute(route),
				semconv.HTTPResponseStatusCode(rw.status),
			)
			level := slog.LevelInfo
			if rw.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.status))
				level = slog.LevelWarn
			}

			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", route),
					attribute.String("status", strconv.Itoa(rw.status)),
				),
			)
			slog.LogAttrs(ctx, level, "request completed",
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", route),
				slog.Int("status", rw.status),
				slog.Duration("duration", elapsed),
			)
		})
	}
}

// routePattern returns the matched chi pattern, or the raw path when the
// request was not routed by chi.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
