package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc")
	ctx, id := EnsureCorrelationID(ctx)
	assert.Equal(t, "abc", id)
	assert.Equal(t, "abc", CorrelationIDFromContext(ctx))
}

func TestEnsureCorrelationIDGenerates(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	assert.Len(t, id, 26)
	assert.Equal(t, id, CorrelationIDFromContext(ctx))
}

func TestBlankValuesAreIgnored(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  ")
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = WithPrincipal(ctx, "api-key:12345678@10.0.0.1")
	assert.Equal(t, "api-key:12345678@10.0.0.1", PrincipalFromContext(ctx))
	assert.Empty(t, GatewayIDFromContext(ctx))
}
