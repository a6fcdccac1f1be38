package context

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
)

type ctxKey string

const (
	requestIDKey     ctxKey = "obs.request_id"
	correlationIDKey ctxKey = "obs.correlation_id"
	principalKey     ctxKey = "obs.principal"
	gatewayIDKey     ctxKey = "obs.gateway_id"
)

// WithRequestID stores the request identifier for logging and tracing.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestIDKey)
}

// WithCorrelationID stores the correlation identifier echoed to callers.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return withString(ctx, correlationIDKey, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, correlationIDKey)
}

// EnsureCorrelationID returns ctx unchanged when it already carries a correlation id,
// otherwise it attaches a fresh ULID.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewCorrelationID()
	return WithCorrelationID(ctx, id), id
}

func NewCorrelationID() string {
	return ulid.Make().String()
}

// WithPrincipal stores the authenticated caller identity.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return withString(ctx, principalKey, principal)
}

func PrincipalFromContext(ctx context.Context) string {
	return stringFromContext(ctx, principalKey)
}

// WithGatewayID stores the gateway MAC of the batch being processed.
func WithGatewayID(ctx context.Context, gatewayID string) context.Context {
	return withString(ctx, gatewayIDKey, gatewayID)
}

func GatewayIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, gatewayIDKey)
}

func withString(ctx context.Context, key ctxKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFromContext(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
