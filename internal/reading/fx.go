package reading

import (
	"github.com/smallbiznis/ruuviproxy/internal/reading/repository"
	"github.com/smallbiznis/ruuviproxy/internal/reading/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reading.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
