package ingest

import (
	"github.com/smallbiznis/ruuviproxy/internal/ingest/service"
	"github.com/smallbiznis/ruuviproxy/internal/resilience"
	"go.uber.org/fx"
)

var Module = fx.Module("ingest.service",
	fx.Provide(func(engine *resilience.Engine) service.Forwarder { return engine }),
	fx.Provide(service.New),
)
