package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("endpoint", "/record"),
		attribute.String("device_id", "AABBCCDDEEFF"),
		attribute.String("result", "forwarded"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "device_id" {
			t.Fatalf("device_id must not be used as a metric label")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordIngestBatch(ctx, "forwarded")
	m.RecordValidationError(ctx, "/record")
	m.RecordConfigUpdate(ctx, "forwarding_enabled", "success")
	m.RecordRetrieval(ctx, "/api/v1/local/devices", 200)
	m.RecordRateLimitDenied(ctx, "/record", "gateway-rate")
}
