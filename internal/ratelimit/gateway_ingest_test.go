package ratelimit

import (
	"context"
	"testing"

	"github.com/smallbiznis/ruuviproxy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayIngestLimiterDisabled(t *testing.T) {
	limiter, err := NewGatewayIngestLimiter(config.Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowGateway(context.Background(), "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestGatewayIngestLimiterRequiresRedis(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimitConfig{Enabled: true, Rate: 1, Burst: 1}}
	_, err := NewGatewayIngestLimiter(cfg, nil)
	assert.Error(t, err)
}

func TestNilPurgeLockAlwaysGrants(t *testing.T) {
	var lock *PurgeLock
	release, ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, release(context.Background()))
}

func TestNormalizeGatewayKey(t *testing.T) {
	assert.Equal(t, "AABBCCDDEEFF", normalizeGatewayKey(" aa:bb:cc:dd:ee:ff "))
	assert.Equal(t, "AABBCCDDEEFF", normalizeGatewayKey("aa-bb-cc-dd-ee-ff"))
}

func TestDefaultBucketTTL(t *testing.T) {
	assert.Equal(t, int64(20), int64(defaultBucketTTL(1, 10).Seconds()))
	assert.Equal(t, int64(1), int64(defaultBucketTTL(1000, 1).Seconds()))
}
