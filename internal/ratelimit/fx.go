package ratelimit

import "go.uber.org/fx"

// Module provides the per-gateway ingest limiter and the purge lease. Both
// are nil when redis is not configured.
var Module = fx.Module("ratelimit",
	fx.Provide(
		NewGatewayIngestLimiter,
		NewPurgeLock,
	),
)
