package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeader is the response header carrying the request's trace ID.
const TraceHeader = "X-Trace-ID"

// otherRoute labels requests for paths the server does not serve.
const otherRoute = "other"

// quietPaths are polled by orchestrators and scrapers.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// statusRecorder captures the status code and body size written by the
// downstream handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Middleware wraps the admin HTTP surface with tracing, duration metrics and
// a completion log line. routes lists the served paths; any other path is
// recorded under the "other" route so probes for random URLs cannot grow the
// metric label set. With no routes every path is recorded as-is.
//
// Incoming W3C trace context is honoured, and the trace ID is echoed in
// [TraceHeader].
func Middleware(m *Metrics, routes ...string) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}
	known := make(map[string]bool, len(routes))
	for _, r := range routes {
		known[r] = true
	}
	route := func(path string) string {
		if len(known) == 0 || known[path] {
			return path
		}
		return otherRoute
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			label := route(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+label,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.HTTPRoute(label),
				),
			)
			defer span.End()

			if id := TraceID(ctx); id != "" {
				w.Header().Set(TraceHeader, id)
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("route", label),
					attribute.Int("status", rec.status),
				),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))

			level := slog.LevelInfo
			if quietPaths[r.URL.Path] {
				level = slog.LevelDebug
			}
			Logger(ctx).LogAttrs(ctx, level, "observe: request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Duration("duration", duration),
			)
		})
	}
}
