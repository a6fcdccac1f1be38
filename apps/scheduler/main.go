package main

import (
	"github.com/smallbiznis/ruuviproxy/internal/cache"
	"github.com/smallbiznis/ruuviproxy/internal/clock"
	"github.com/smallbiznis/ruuviproxy/internal/config"
	"github.com/smallbiznis/ruuviproxy/internal/observability"
	"github.com/smallbiznis/ruuviproxy/internal/ratelimit"
	"github.com/smallbiznis/ruuviproxy/internal/reading"
	"github.com/smallbiznis/ruuviproxy/internal/reading/purge"
	"github.com/smallbiznis/ruuviproxy/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		cache.Module,

		// Expired-reading purge; the redis lock keeps replicas from overlapping.
		ratelimit.Module,
		reading.Module,
		purge.Module,

		// No server module!
	)
	app.Run()
}
