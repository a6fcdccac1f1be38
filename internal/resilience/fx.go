package resilience

import (
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/ruuviproxy/internal/clock"
	"github.com/smallbiznis/ruuviproxy/internal/config"
	obsmetrics "github.com/smallbiznis/ruuviproxy/internal/observability/metrics"
	"github.com/smallbiznis/ruuviproxy/internal/upstream"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("resilience",
	fx.Provide(provideStateStore),
	fx.Provide(provideBreaker),
	fx.Provide(provideEngine),
)

type storeParams struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Redis  *redis.Client `optional:"true"`
}

func provideStateStore(p storeParams) StateStore {
	if p.Config.Resilience.Backend == config.BreakerBackendRedis {
		if p.Redis != nil {
			return NewRedisStateStore(p.Redis, "")
		}
		p.Log.Warn("redis breaker backend requested without REDIS_ADDR, using in-process state")
	}
	return NewMemoryStateStore()
}

type breakerParams struct {
	fx.In

	Config       config.Config
	Log          *zap.Logger
	Store        StateStore
	Clock        clock.Clock               `optional:"true"`
	ProxyMetrics *obsmetrics.ProxyMetrics `optional:"true"`
}

func provideBreaker(p breakerParams) *Breaker {
	return NewBreaker(p.Store, p.Clock, BreakerConfig{
		FailureThreshold: p.Config.Resilience.FailureThreshold,
		RecoveryTimeout:  time.Duration(p.Config.Resilience.RecoverySeconds) * time.Second,
	}, p.Log, p.ProxyMetrics)
}

type engineParams struct {
	fx.In

	Config       config.Config
	Log          *zap.Logger
	Client       *upstream.Client
	Breaker      *Breaker
	ProxyMetrics *obsmetrics.ProxyMetrics `optional:"true"`
}

func provideEngine(p engineParams) *Engine {
	return NewEngine(p.Client, p.Breaker, NewSleeper(), RetryConfig{
		MaxRetries: p.Config.Resilience.MaxRetries,
		BaseDelay:  time.Duration(p.Config.Resilience.BaseDelayMillis) * time.Millisecond,
	}, p.Log, p.ProxyMetrics)
}
