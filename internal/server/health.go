package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	configdomain "github.com/smallbiznis/ruuviproxy/internal/configstore/domain"
	"github.com/smallbiznis/ruuviproxy/internal/resilience"
	"github.com/smallbiznis/ruuviproxy/internal/upstream"
)

const (
	defaultUpstreamEndpoint = "https://network.ruuvi.com/record"
	defaultUpstreamTimeout  = 25.0
)

// BreakerSnapshotter exposes the relay breaker state for health reporting.
type BreakerSnapshotter interface {
	Snapshot(ctx context.Context) resilience.Snapshot
}

// UpstreamHealthChecker probes the vendor health endpoint.
type UpstreamHealthChecker interface {
	HealthCheck(ctx context.Context, endpoint string, timeout time.Duration) upstream.HealthStatus
}

type healthResponse struct {
	Status         string               `json:"status"`
	Timestamp      int64                `json:"timestamp"`
	Version        string               `json:"version,omitempty"`
	CircuitBreaker *resilience.Snapshot `json:"circuit_breaker,omitempty"`
}

func (s *Server) Health(c *gin.Context) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().Unix(),
		Version:   s.cfg.AppVersion,
	}
	if s.breaker != nil {
		snapshot := s.breaker.Snapshot(c.Request.Context())
		resp.CircuitBreaker = &snapshot
	}
	c.JSON(http.StatusOK, resp)
}

// UpstreamHealth reports whether the vendor API answers its health probe.
func (s *Server) UpstreamHealth(c *gin.Context) {
	if s.upstream == nil {
		AbortWithError(c, ErrInternal)
		return
	}
	ctx := c.Request.Context()
	endpoint := s.configSvc.GetString(ctx, configdomain.KeyRuuviCloudEndpoint, defaultUpstreamEndpoint)
	timeout := s.configSvc.GetFloat(ctx, configdomain.KeyRuuviCloudTimeout, defaultUpstreamTimeout)

	status := s.upstream.HealthCheck(ctx, endpoint, time.Duration(timeout*float64(time.Second)))
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
