package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var sensitiveAttributeFragments = []string{
	"api_key",
	"apikey",
	"authorization",
	"password",
	"secret",
	"token",
	"claims",
}

// ExtractContext reads upstream trace context from carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectContext writes the active trace context into carrier.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// SafeAttributes drops attributes whose keys look like credentials.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveKey(string(attr.Key)) {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError returns an error safe to attach to a span.
// Messages that look like they carry credentials are replaced.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if isSensitiveKey(msg) {
		return errors.New("redacted error")
	}
	return err
}

func isSensitiveKey(value string) bool {
	lower := strings.ToLower(value)
	for _, fragment := range sensitiveAttributeFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
