package retrieval

import (
	"github.com/smallbiznis/ruuviproxy/internal/retrieval/service"
	"go.uber.org/fx"
)

var Module = fx.Module("retrieval.service",
	fx.Provide(service.New),
)
