package tracing

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/ruuviproxy/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request. Gateway and principal
// attributes are read after the handler chain, since auth and rate-limit
// middlewares attach them further down.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("ruuviproxy/http")
	return func(c *gin.Context) {
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+c.Request.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ctx = withIDBaggage(ctx, span)
		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName("HTTP " + c.Request.Method + " " + route)

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		}
		reqCtx := c.Request.Context()
		if gw := obscontext.GatewayIDFromContext(reqCtx); gw != "" {
			attrs = append(attrs, attribute.String("ruuvi.gateway_id", gw))
		}
		if principal := obscontext.PrincipalFromContext(reqCtx); principal != "" {
			attrs = append(attrs, attribute.String("enduser.id", principal))
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		if status < http.StatusInternalServerError {
			return
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			if safeErr := SafeError(lastErr.Err); safeErr != nil {
				span.RecordError(safeErr)
			}
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

// withIDBaggage copies request and correlation ids onto the span and into
// baggage so the upstream relay propagates them.
func withIDBaggage(ctx context.Context, span trace.Span) context.Context {
	var members []baggage.Member
	for _, id := range []struct{ key, value string }{
		{"request_id", obscontext.RequestIDFromContext(ctx)},
		{"correlation_id", obscontext.CorrelationIDFromContext(ctx)},
	} {
		if id.value == "" {
			continue
		}
		span.SetAttributes(attribute.String(id.key, id.value))
		if m, err := baggage.NewMember(id.key, id.value); err == nil {
			members = append(members, m)
		}
	}
	if len(members) == 0 {
		return ctx
	}
	bag, err := baggage.New(members...)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
