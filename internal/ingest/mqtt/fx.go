package mqtt

import (
	"context"

	"github.com/smallbiznis/ruuviproxy/internal/config"
	ingestdomain "github.com/smallbiznis/ruuviproxy/internal/ingest/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ingest.mqtt",
	fx.Provide(provideSubscriber),
	fx.Invoke(registerLifecycle),
)

func provideSubscriber(cfg config.Config, ingest ingestdomain.Service, log *zap.Logger) *Subscriber {
	return NewSubscriber(cfg.MQTT, ingest, log)
}

func registerLifecycle(lc fx.Lifecycle, sub *Subscriber, log *zap.Logger) {
	if !sub.Enabled() {
		log.Info("mqtt ingest disabled")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sub.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return sub.Stop(ctx)
		},
	})
}
