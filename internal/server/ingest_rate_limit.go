package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/ruuviproxy/internal/observability/context"
	"github.com/smallbiznis/ruuviproxy/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ruuviproxy/internal/observability/metrics"
	"github.com/smallbiznis/ruuviproxy/internal/ratelimit"
	"go.uber.org/zap"
)

const rateLimitReasonGatewayRate = "gateway-rate"

// GatewayLimiter is the per-gateway token bucket consulted on ingest.
type GatewayLimiter interface {
	Enabled() bool
	AllowGateway(ctx context.Context, gatewayMAC string) (*ratelimit.RateLimitResult, error)
}

type gatewayIngestKey struct {
	Data *struct {
		GatewayMAC string `json:"gwmac"`
	} `json:"data"`
}

// GatewayIngestRateLimit tags the request with the posting gateway and
// applies the per-gateway bucket when one is configured. Limiter faults let
// the batch through.
func (s *Server) GatewayIngestRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		gatewayMAC, err := readGatewayMAC(c)
		if err != nil {
			logger.FromContext(c.Request.Context()).Warn("ingest rate limit read body failed", zap.Error(err))
			c.Next()
			return
		}
		if gatewayMAC != "" {
			c.Set(contextGatewayKey, gatewayMAC)
			c.Request = c.Request.WithContext(obscontext.WithGatewayID(c.Request.Context(), gatewayMAC))
		}

		if s.limiter == nil || !s.limiter.Enabled() || gatewayMAC == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		result, err := s.limiter.AllowGateway(ctx, gatewayMAC)
		if err != nil {
			logger.FromContext(ctx).Warn("gateway rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			denyGatewayIngest(c, normalizeRateLimitEndpoint(c), result, s.obsMetrics)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Next()
	}
}

func denyGatewayIngest(c *gin.Context, endpoint string, result *ratelimit.RateLimitResult, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("gateway ingest rate limit exceeded",
		zap.String("reason", rateLimitReasonGatewayRate),
		zap.String("endpoint", endpoint),
	)
	if metrics != nil {
		metrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonGatewayRate)
	}

	retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonGatewayRate)
	AbortWithError(c, ErrRateLimited)
}

func readGatewayMAC(c *gin.Context) (string, error) {
	if c.Request.Body == nil {
		return "", nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	var payload gatewayIngestKey
	if err := json.Unmarshal(body, &payload); err != nil || payload.Data == nil {
		return "", nil
	}
	return strings.TrimSpace(payload.Data.GatewayMAC), nil
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
