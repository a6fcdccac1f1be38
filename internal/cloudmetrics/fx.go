package cloudmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/ruuviproxy/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultPushInterval = 60 * time.Second

var Module = fx.Module("cloud.metrics",
	fx.Provide(NewPusher),
	fx.Invoke(registerWorker),
)

func registerWorker(lc fx.Lifecycle, cfg config.Config, pusher Pusher, logger *zap.Logger) {
	if pusher == nil {
		return
	}
	interval := time.Duration(cfg.Cloud.Metrics.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultPushInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			logger.Info("starting metrics push worker", zap.Duration("interval", interval))
			go func() {
				defer close(done)
				RunPushLoop(ctx, pusher, prometheus.DefaultGatherer, interval, logger)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

// RunPushLoop pushes once immediately, then every interval until ctx is done.
// A final push is attempted on shutdown so the last counters are not lost.
func RunPushLoop(ctx context.Context, pusher Pusher, gatherer prometheus.Gatherer, interval time.Duration, logger *zap.Logger) {
	push := func(pushCtx context.Context) {
		pushCtx, cancel := context.WithTimeout(pushCtx, defaultPushTimeout)
		defer cancel()
		if err := pusher.Push(pushCtx, gatherer); err != nil {
			logger.Warn("metrics push failed", zap.Error(err))
		}
	}

	push(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			push(ctx)
		case <-ctx.Done():
			push(context.WithoutCancel(ctx))
			logger.Info("stopping metrics push worker")
			return
		}
	}
}
