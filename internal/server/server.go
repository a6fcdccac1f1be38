package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/ruuviproxy/internal/authorization"
	"github.com/smallbiznis/ruuviproxy/internal/config"
	configdomain "github.com/smallbiznis/ruuviproxy/internal/configstore/domain"
	ingestdomain "github.com/smallbiznis/ruuviproxy/internal/ingest/domain"
	"github.com/smallbiznis/ruuviproxy/internal/observability"
	obslogger "github.com/smallbiznis/ruuviproxy/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ruuviproxy/internal/observability/metrics"
	obstracing "github.com/smallbiznis/ruuviproxy/internal/observability/tracing"
	"github.com/smallbiznis/ruuviproxy/internal/ratelimit"
	"github.com/smallbiznis/ruuviproxy/internal/resilience"
	retrievaldomain "github.com/smallbiznis/ruuviproxy/internal/retrieval/domain"
	"github.com/smallbiznis/ruuviproxy/internal/upstream"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	authzSvc     authorization.Service
	ingestSvc    ingestdomain.Service
	retrievalSvc retrievaldomain.Service
	configSvc    configdomain.Service
	breaker      BreakerSnapshotter
	upstream     UpstreamHealthChecker
	limiter      GatewayLimiter
	obsMetrics   *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	AuthzSvc     authorization.Service
	ConfigSvc    configdomain.Service
	IngestSvc    ingestdomain.Service            `optional:"true"`
	RetrievalSvc retrievaldomain.Service         `optional:"true"`
	Breaker      *resilience.Breaker             `optional:"true"`
	Upstream     *upstream.Client                `optional:"true"`
	Limiter      *ratelimit.GatewayIngestLimiter `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics             `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		authzSvc:     p.AuthzSvc,
		ingestSvc:    p.IngestSvc,
		retrievalSvc: p.RetrievalSvc,
		configSvc:    p.ConfigSvc,
		obsMetrics:   p.ObsMetrics,
	}
	// typed nils would defeat the nil checks on the interfaces
	if p.Breaker != nil {
		svc.breaker = p.Breaker
	}
	if p.Upstream != nil {
		svc.upstream = p.Upstream
	}
	if p.Limiter != nil {
		svc.limiter = p.Limiter
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes mounts health, the configuration API and whichever of the
// ingest and retrieval surfaces this process was built with.
func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.Health)
	s.engine.GET("/health/upstream",
		s.AdminAuthRequired(),
		s.authorizeAction(authorization.ObjectUpstream, authorization.ActionUpstreamHealth),
		s.UpstreamHealth,
	)

	api := s.engine.Group("/api/v1")

	if s.ingestSvc != nil {
		ingest := []gin.HandlerFunc{
			s.IngestAuth(),
			IngestBodyLimit(),
			s.GatewayIngestRateLimit(),
			s.authorizeAction(authorization.ObjectReadings, authorization.ActionReadingsIngest),
			s.IngestRecord,
		}
		s.engine.POST("/record", ingest...)
		api.POST("/record", ingest...)
	}

	if s.retrievalSvc != nil {
		local := api.Group("/local")
		local.Use(s.RetrievalMetrics())
		local.Use(s.RetrievalAuthRequired())
		local.Use(s.authorizeAction(authorization.ObjectReadings, authorization.ActionReadingsView))
		{
			local.GET("/current/:device_id", s.GetCurrentReading)
			local.GET("/current", s.GetMultipleCurrentReadings)
			local.GET("/history/:device_id", s.GetReadingHistory)
			local.GET("/history", s.GetMultipleReadingHistory)
			local.GET("/gateways/:gateway_id/history", s.GetGatewayHistory)
			local.GET("/devices", s.ListDevices)
		}
	}

	admin := api.Group("/config")
	admin.Use(s.AdminAuthRequired())
	{
		admin.GET("", s.authorizeAction(authorization.ObjectConfig, authorization.ActionConfigView), s.GetConfig)
		admin.PUT("", s.authorizeAction(authorization.ObjectConfig, authorization.ActionConfigUpdate), s.UpdateConfig)
	}
}
