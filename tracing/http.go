// Package tracing provides OpenTelemetry tracing for the HTTP surface. It is
// entirely optional: tracing is only active when a [TracingConfig] is passed
// to the server via the WithOpenTelemetry option.
package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Keksclan/zoraprofiles/contextx"
	"github.com/Keksclan/zoraprofiles/internal/httpx"
)

// TracingConfig holds the OpenTelemetry configuration used by [Middleware].
type TracingConfig struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators extracts trace context from incoming request headers.
	// When nil the global otel.GetTextMapPropagator() is used.
	Propagators propagation.TextMapPropagator
}

// Provider returns the configured provider or the global one.
func (c *TracingConfig) Provider() trace.TracerProvider {
	if c == nil || c.TracerProvider == nil {
		return otel.GetTracerProvider()
	}
	return c.TracerProvider
}

func (c *TracingConfig) tracer() trace.Tracer {
	return c.Provider().Tracer("github.com/Keksclan/zoraprofiles/tracing")
}

func (c *TracingConfig) propagators() propagation.TextMapPropagator {
	if c.Propagators != nil {
		return c.Propagators
	}
	return otel.GetTextMapPropagator()
}

// Middleware returns net/http middleware that starts a server span for every
// request, continuing any trace found in the request headers. Responses with
// a 5xx status mark the span as failed. If cfg is nil the middleware is a
// passthrough.
func Middleware(cfg *TracingConfig) func(http.Handler) http.Handler {
	if cfg == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := cfg.propagators().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := cfg.tracer().Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			span.SetAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			)
			if id := contextx.RequestIDFromContext(ctx); id != "" {
				span.SetAttributes(attribute.String("request.id", id))
			}

			sw := httpx.NewStatusWriter(w)
			next.ServeHTTP(sw, r.WithContext(ctx))
			recordStatus(span, sw.Status)
		})
	}
}

func recordStatus(span trace.Span, status int) {
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
		return
	}
	span.SetStatus(codes.Ok, "")
}
