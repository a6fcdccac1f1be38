package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/ruuviproxy/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/ruuviproxy/internal/observability/metrics"
	"github.com/smallbiznis/ruuviproxy/internal/upstream"
	"go.uber.org/zap"
)

const (
	CodeCircuitOpen    = "CIRCUIT_BREAKER_OPEN"
	MessageCircuitOpen = "Ruuvi Cloud service temporarily unavailable"
)

var retryableCodes = map[string]struct{}{
	upstream.CodeTimeout:    {},
	upstream.CodeConnection: {},
	"HTTP_500":              {},
	"HTTP_502":              {},
	"HTTP_503":              {},
	"HTTP_504":              {},
}

func IsRetryable(code string) bool {
	_, ok := retryableCodes[code]
	return ok
}

// Forwarder sends one relay request.
type Forwarder interface {
	Send(ctx context.Context, req upstream.Request) upstream.Response
}

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	return c
}

// Outcome is the terminal result of Forward. Attempted is false only when the
// breaker refused the call.
type Outcome struct {
	Success   bool
	Response  upstream.Response
	Attempted bool
	Attempts  int
	ErrorCode string
}

func (o Outcome) Err() error {
	switch {
	case o.Success:
		return nil
	case !o.Attempted && o.ErrorCode == CodeCircuitOpen:
		return ErrCircuitOpen
	default:
		return fmt.Errorf("resilience: forward failed: %s", o.ErrorCode)
	}
}

type Engine struct {
	client  Forwarder
	breaker *Breaker
	sleeper Sleeper
	cfg     RetryConfig
	log     *zap.Logger
	metrics *obsmetrics.ProxyMetrics
}

func NewEngine(client Forwarder, breaker *Breaker, sleeper Sleeper, cfg RetryConfig, log *zap.Logger, metrics *obsmetrics.ProxyMetrics) *Engine {
	if sleeper == nil {
		sleeper = NewSleeper()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		client:  client,
		breaker: breaker,
		sleeper: sleeper,
		cfg:     cfg.withDefaults(),
		log:     log.Named("resilience.engine"),
		metrics: metrics,
	}
}

func (e *Engine) Breaker() *Breaker { return e.breaker }

// Forward relays req through the breaker and the retry policy. It never
// panics; a panic in the forwarder is reported as UNKNOWN_ERROR.
func (e *Engine) Forward(ctx context.Context, req upstream.Request) (out Outcome) {
	log := logger.WithContext(ctx, e.log)

	if !e.breaker.CanExecute(ctx) {
		e.metrics.RecordBreakerOpen()
		e.metrics.RecordForwardResult(obsmetrics.ForwardResultBreakerOpen)
		log.Warn("circuit breaker open, skipping upstream call")
		return Outcome{
			Response:  upstream.Failure(CodeCircuitOpen, MessageCircuitOpen),
			ErrorCode: CodeCircuitOpen,
		}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("upstream forward panicked", zap.Any("panic", r))
			e.breaker.RecordFailure(ctx)
			e.metrics.RecordForwardResult(obsmetrics.ForwardResultException)
			out = Outcome{
				Response:  upstream.Failure(upstream.CodeUnknown, fmt.Sprintf("Unexpected error: %v", r)),
				Attempted: true,
				Attempts:  out.Attempts,
				ErrorCode: upstream.CodeUnknown,
			}
		}
	}()

	delay := e.cfg.BaseDelay
	var last upstream.Response
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		start := time.Now()
		resp := e.client.Send(ctx, req)
		out.Attempts++
		elapsed := time.Since(start)

		if resp.Success {
			e.metrics.RecordForwardAttempt(obsmetrics.AttemptOutcomeSuccess, "", elapsed)
			e.metrics.RecordForwardResult(obsmetrics.ForwardResultSuccess)
			e.breaker.RecordSuccess(ctx)
			log.Info("upstream forward succeeded", zap.Int("attempts", out.Attempts))
			return Outcome{
				Success:   true,
				Response:  resp,
				Attempted: true,
				Attempts:  out.Attempts,
			}
		}

		last = resp
		if !IsRetryable(resp.ErrorCode) || attempt == e.cfg.MaxRetries {
			e.metrics.RecordForwardAttempt(obsmetrics.AttemptOutcomeFailure, resp.ErrorCode, elapsed)
			break
		}

		e.metrics.RecordForwardAttempt(obsmetrics.AttemptOutcomeRetry, resp.ErrorCode, elapsed)
		log.Warn("upstream forward failed, retrying",
			zap.Int("attempt", out.Attempts),
			zap.String("error_code", resp.ErrorCode),
			zap.Duration("delay", delay),
		)
		if err := e.sleeper.Sleep(ctx, delay); err != nil {
			log.Warn("retry wait interrupted", zap.Error(err))
			break
		}
		delay *= 2
	}

	e.breaker.RecordFailure(ctx)
	e.metrics.RecordForwardResult(obsmetrics.ForwardResultFailure)
	log.Error("upstream forward failed",
		zap.Int("attempts", out.Attempts),
		zap.String("error_code", last.ErrorCode),
		zap.String("error_message", last.ErrorMessage),
	)
	return Outcome{
		Response:  last,
		Attempted: true,
		Attempts:  out.Attempts,
		ErrorCode: last.ErrorCode,
	}
}
