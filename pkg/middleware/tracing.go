package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerPrefix = "github.com/utafrali/EcommerceGo/services/"

type tracingOptions struct {
	queryParams []string
	skipPaths   map[string]bool
}

// TracingOption customizes the Tracing middleware.
type TracingOption func(*tracingOptions)

// WithQueryAttributes records the named query string parameters as
// "http.query.<name>" span attributes when they are present.
func WithQueryAttributes(names ...string) TracingOption {
	return func(o *tracingOptions) {
		o.queryParams = append(o.queryParams, names...)
	}
}

// WithoutTracing skips span creation for the exact paths given, such as
// health checks.
func WithoutTracing(paths ...string) TracingOption {
	return func(o *tracingOptions) {
		for _, p := range paths {
			o.skipPaths[p] = true
		}
	}
}

// Tracing starts a server span per request, continuing any W3C trace context
// found in the inbound headers. The span is renamed after the chi route once
// routing has happened, and marked as failed on 5xx responses.
func Tracing(serviceName string, opts ...TracingOption) func(http.Handler) http.Handler {
	o := tracingOptions{skipPaths: map[string]bool{}}
	for _, opt := range opts {
		opt(&o)
	}
	tracer := otel.Tracer(tracerPrefix + serviceName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			propagator := otel.GetTextMapPropagator()
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			attrs := []attribute.KeyValue{
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("url.scheme", scheme(r)),
				attribute.String("user_agent.original", r.UserAgent()),
				attribute.String("client.address", r.RemoteAddr),
			}
			if len(o.queryParams) > 0 {
				q := r.URL.Query()
				for _, name := range o.queryParams {
					if v := q.Get(name); v != "" {
						attrs = append(attrs, attribute.String("http.query."+name, v))
					}
				}
			}

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))

			rw := recorderFrom(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			if route := routePattern(r); route != "unknown" {
				span.SetName(r.Method + " " + route)
				span.SetAttributes(attribute.String("http.route", route))
			}
			span.SetAttributes(attribute.Int("http.response.status_code", rw.status))
			if rw.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.status))
			}
		})
	}
}

func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}
