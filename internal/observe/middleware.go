package observe

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// otherRoute labels requests for paths outside the known route set.
const otherRoute = "other"

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets [http.ResponseController] and the websocket upgrader reach
// the underlying writer for flushing and hijacking.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// MiddlewareOption configures [Middleware].
type MiddlewareOption func(*middleware)

type middleware struct {
	routes map[string]bool
	quiet  map[string]bool
}

// WithRoutes restricts the route label to paths. Any other path is reported
// as "other" so that scanners probing random URLs cannot inflate metric
// cardinality. Without this option the raw path is used.
func WithRoutes(paths ...string) MiddlewareOption {
	return func(m *middleware) {
		if m.routes == nil {
			m.routes = make(map[string]bool, len(paths))
		}
		for _, p := range paths {
			m.routes[p] = true
		}
	}
}

// WithQuietPaths logs completed requests for paths at debug level. Use it
// for probe and scrape endpoints that are hit every few seconds.
func WithQuietPaths(paths ...string) MiddlewareOption {
	return func(m *middleware) {
		if m.quiet == nil {
			m.quiet = make(map[string]bool, len(paths))
		}
		for _, p := range paths {
			m.quiet[p] = true
		}
	}
}

func (mw *middleware) route(path string) string {
	if mw.routes == nil || mw.routes[path] {
		return path
	}
	return otherRoute
}

func (mw *middleware) level(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelWarn
	case mw.quiet[path]:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// statusClass maps 404 to "4xx".
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// Middleware instruments every request handled by next. It continues an
// incoming W3C trace (or starts one), echoes the trace ID in the
// X-Correlation-ID response header, records [Metrics.HTTPRequestDuration]
// labelled by method, route and status class, and logs the outcome.
func Middleware(m *Metrics, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}
	mw := &middleware{}
	for _, o := range opts {
		o(mw)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := mw.route(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "HTTP "+r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.HTTPRoute(route),
				),
			)
			defer span.End()

			cid := CorrelationID(ctx)
			if cid != "" {
				w.Header().Set("X-Correlation-ID", cid)
			}
			prop.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, duration.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("path", route),
					attribute.String("status", statusClass(rec.statusCode)),
				),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.statusCode))

			slog.LogAttrs(ctx, mw.level(r.URL.Path, rec.statusCode), "http: request completed",
				slog.String("trace_id", cid),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Duration("duration", duration),
			)
		})
	}
}
