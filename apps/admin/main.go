package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/ruuviproxy/internal/authorization"
	"github.com/smallbiznis/ruuviproxy/internal/clock"
	"github.com/smallbiznis/ruuviproxy/internal/cloudmetrics"
	"github.com/smallbiznis/ruuviproxy/internal/config"
	"github.com/smallbiznis/ruuviproxy/internal/configstore"
	"github.com/smallbiznis/ruuviproxy/internal/migration"
	"github.com/smallbiznis/ruuviproxy/internal/observability"
	"github.com/smallbiznis/ruuviproxy/internal/server"
	"github.com/smallbiznis/ruuviproxy/internal/upstream"
	"github.com/smallbiznis/ruuviproxy/pkg/db"
	"go.uber.org/fx"
)

// Operator process: configuration API, vendor health probe and schema
// migrations.
func main() {
	app := fx.New(
		config.Module,
		cloudmetrics.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		configstore.Module,
		authorization.Module,
		upstream.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}
