package configstore

import (
	"github.com/smallbiznis/ruuviproxy/internal/configstore/repository"
	"github.com/smallbiznis/ruuviproxy/internal/configstore/service"
	"go.uber.org/fx"
)

var Module = fx.Module("configstore.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
