package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smallbiznis/ruuviproxy/internal/clock"
	"github.com/smallbiznis/ruuviproxy/internal/observability/logger"
	"github.com/smallbiznis/ruuviproxy/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultTimeout  = 25 * time.Second
	maxResponseBody = 1 << 20
)

type Params struct {
	fx.In

	Log        *zap.Logger
	HTTPClient *http.Client `optional:"true"`
	Clock      clock.Clock  `optional:"true"`
}

// Client performs single relay calls against the vendor API. Retries and
// breaker decisions belong to the caller.
type Client struct {
	http  *http.Client
	log   *zap.Logger
	clock clock.Clock
}

func NewClient(p Params) *Client {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Client{
		http:  tracing.WrapHTTPClient(p.HTTPClient),
		log:   p.Log.Named("upstream.client"),
		clock: clk,
	}
}

func (c *Client) Send(ctx context.Context, req Request) Response {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	log := logger.WithContext(ctx, c.log)

	endpoint, err := RecordURL(req.Endpoint)
	if err != nil {
		return Failure(CodeRequest, fmt.Sprintf("Request failed: %v", err))
	}

	body, err := json.Marshal(map[string]any{"data": req.Payload})
	if err != nil {
		return Failure(CodeRequest, fmt.Sprintf("Request failed: %v", err))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Failure(CodeRequest, fmt.Sprintf("Request failed: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", UserAgent)

	log.Info("sending batch upstream", zap.String("url", endpoint), zap.Int("tags", len(req.Payload.Tags)))
	start := time.Now()
	resp, err := c.http.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		out := classifyTransportError(err, timeout)
		out.Duration = elapsed
		log.Warn("upstream request failed",
			zap.String("error_code", out.ErrorCode),
			zap.Duration("duration", elapsed),
			zap.Error(tracing.SafeError(err)),
		)
		return out
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		out := classifyTransportError(err, timeout)
		out.StatusCode = resp.StatusCode
		out.Duration = elapsed
		return out
	}

	log.Info("upstream request completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", elapsed),
	)

	if resp.StatusCode != http.StatusOK {
		code := fmt.Sprintf("HTTP_%d", resp.StatusCode)
		out := Failure(code, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
		out.StatusCode = resp.StatusCode
		out.Duration = elapsed
		log.Warn("upstream returned error status", zap.Int("status", resp.StatusCode), zap.ByteString("body", truncate(raw, 512)))
		return out
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		msg := "Invalid JSON response"
		if err != nil {
			msg = fmt.Sprintf("Invalid JSON response: %v", err)
		}
		out := Failure(CodeJSONParse, msg)
		out.StatusCode = resp.StatusCode
		out.Duration = elapsed
		return out
	}

	return Response{
		Success:    true,
		StatusCode: resp.StatusCode,
		Body:       decoded,
		Duration:   elapsed,
	}
}

// HealthCheck probes GET <scheme://host>/health of the configured endpoint.
func (c *Client) HealthCheck(ctx context.Context, endpoint string, timeout time.Duration) HealthStatus {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	now := c.clock.Now().Unix()
	unhealthy := func(msg string) HealthStatus {
		return HealthStatus{Status: "unhealthy", Error: msg, Timestamp: now}
	}

	healthURL, err := HealthURL(endpoint)
	if err != nil {
		return unhealthy(err.Error())
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return unhealthy(err.Error())
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		logger.WithContext(ctx, c.log).Warn("upstream health check failed", zap.Error(tracing.SafeError(err)))
		return unhealthy(tracing.SafeError(err).Error())
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode != http.StatusOK {
		return unhealthy(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}
	return HealthStatus{Healthy: true, Status: "healthy", Timestamp: now}
}

// RecordURL returns the POST target for endpoint, appending /record when the
// endpoint has no path.
func RecordURL(endpoint string) (string, error) {
	u, err := parseEndpoint(endpoint)
	if err != nil {
		return "", err
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/record"
	}
	return u.String(), nil
}

func HealthURL(endpoint string) (string, error) {
	u, err := parseEndpoint(endpoint)
	if err != nil {
		return "", err
	}
	base := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/health"}
	return base.String(), nil
}

func parseEndpoint(endpoint string) (*url.URL, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("endpoint host is required")
	}
	return u, nil
}

func classifyTransportError(err error, timeout time.Duration) Response {
	if errors.Is(err, context.DeadlineExceeded) {
		return Failure(CodeTimeout, fmt.Sprintf("Request timeout after %d seconds", int(timeout.Seconds())))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Failure(CodeTimeout, fmt.Sprintf("Request timeout after %d seconds", int(timeout.Seconds())))
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Failure(CodeConnection, fmt.Sprintf("Failed to connect to Ruuvi Cloud: %v", tracing.SafeError(err)))
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Failure(CodeRequest, fmt.Sprintf("Request failed: %v", tracing.SafeError(err)))
	}
	return Failure(CodeUnknown, fmt.Sprintf("Unexpected error: %v", tracing.SafeError(err)))
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
