package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ruuviproxy/internal/authorization"
	"github.com/smallbiznis/ruuviproxy/internal/cache"
	"github.com/smallbiznis/ruuviproxy/internal/clock"
	"github.com/smallbiznis/ruuviproxy/internal/config"
	"github.com/smallbiznis/ruuviproxy/internal/configstore"
	"github.com/smallbiznis/ruuviproxy/internal/ingest"
	"github.com/smallbiznis/ruuviproxy/internal/ingest/mqtt"
	"github.com/smallbiznis/ruuviproxy/internal/observability"
	"github.com/smallbiznis/ruuviproxy/internal/ratelimit"
	"github.com/smallbiznis/ruuviproxy/internal/reading"
	"github.com/smallbiznis/ruuviproxy/internal/resilience"
	"github.com/smallbiznis/ruuviproxy/internal/retrieval"
	"github.com/smallbiznis/ruuviproxy/internal/server"
	"github.com/smallbiznis/ruuviproxy/internal/upstream"
	"github.com/smallbiznis/ruuviproxy/pkg/db"
	"go.uber.org/fx"
)

// Gateway-facing process: ingest over HTTP and MQTT plus local retrieval.
// Schema migrations and the purge loop run elsewhere.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		cache.Module,

		// Core dependencies for ingest
		configstore.Module,
		authorization.Module,
		ratelimit.Module,
		upstream.Module,
		resilience.Module,
		reading.Module,
		ingest.Module,
		mqtt.Module,
		retrieval.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
