package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/ruuviproxy/internal/config"
)

const keyGatewayIngest = "ruuvi:ingest:gateway:%s"

// GatewayIngestLimiter throttles batch submissions per gateway MAC.
type GatewayIngestLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewGatewayIngestLimiter(cfg config.Config, client *redis.Client) (*GatewayIngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	if limitCfg.Rate <= 0 || limitCfg.Burst <= 0 {
		return nil, errors.New("gateway ingest rate limit must be positive")
	}

	return &GatewayIngestLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.Rate,
		burst:   limitCfg.Burst,
	}, nil
}

func (l *GatewayIngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *GatewayIngestLimiter) AllowGateway(ctx context.Context, gatewayMAC string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyGatewayIngest, normalizeGatewayKey(gatewayMAC)), l.rate, l.burst)
}

func normalizeGatewayKey(mac string) string {
	replacer := strings.NewReplacer(":", "", "-", "")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(mac)))
}
