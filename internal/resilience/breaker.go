package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/ruuviproxy/internal/clock"
	obsmetrics "github.com/smallbiznis/ruuviproxy/internal/observability/metrics"
	"go.uber.org/zap"
)

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

var ErrCircuitOpen = errors.New("circuit_open")

// BreakerState is the persisted breaker record.
type BreakerState struct {
	State          State
	Failures       int
	LastFailure    time.Time
	ProbeInFlight  bool
	ProbeStartedAt time.Time
}

func (s BreakerState) normalized() BreakerState {
	if s.State == "" {
		s.State = StateClosed
	}
	return s
}

// StateStore holds breaker state. Update applies fn atomically with respect
// to other callers sharing the store; fn may be invoked more than once.
type StateStore interface {
	Load(ctx context.Context) (BreakerState, error)
	Update(ctx context.Context, fn func(*BreakerState)) (BreakerState, error)
}

type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
	return c
}

// Snapshot is the breaker view exposed on health endpoints.
type Snapshot struct {
	State            State      `json:"state"`
	FailureCount     int        `json:"failure_count"`
	FailureThreshold int        `json:"failure_threshold"`
	RecoverySeconds  int        `json:"recovery_timeout_seconds"`
	LastFailureTime  *time.Time `json:"last_failure_time,omitempty"`
}

type Breaker struct {
	store   StateStore
	clock   clock.Clock
	cfg     BreakerConfig
	log     *zap.Logger
	metrics *obsmetrics.ProxyMetrics
}

func NewBreaker(store StateStore, clk clock.Clock, cfg BreakerConfig, log *zap.Logger, metrics *obsmetrics.ProxyMetrics) *Breaker {
	if store == nil {
		store = NewMemoryStateStore()
	}
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Breaker{
		store:   store,
		clock:   clk,
		cfg:     cfg.withDefaults(),
		log:     log.Named("resilience.breaker"),
		metrics: metrics,
	}
}

// CanExecute reports whether a call may go out. An OPEN breaker past its
// recovery window moves to HALF_OPEN and admits one probe.
func (b *Breaker) CanExecute(ctx context.Context) bool {
	now := b.clock.Now()
	var allowed bool
	var from State

	st, err := b.store.Update(ctx, func(s *BreakerState) {
		*s = s.normalized()
		allowed = false
		from = s.State

		switch s.State {
		case StateClosed:
			allowed = true
		case StateOpen:
			if now.Sub(s.LastFailure) > b.cfg.RecoveryTimeout {
				s.State = StateHalfOpen
				s.ProbeInFlight = true
				s.ProbeStartedAt = now
				allowed = true
			}
		case StateHalfOpen:
			// a probe that never reported back is abandoned after one window
			if !s.ProbeInFlight || now.Sub(s.ProbeStartedAt) > b.cfg.RecoveryTimeout {
				s.ProbeInFlight = true
				s.ProbeStartedAt = now
				allowed = true
			}
		}
	})
	if err != nil {
		b.log.Warn("breaker state unavailable, permitting call", zap.Error(err))
		return true
	}
	b.transitioned(from, st.State)
	return allowed
}

func (b *Breaker) RecordSuccess(ctx context.Context) {
	var from State
	st, err := b.store.Update(ctx, func(s *BreakerState) {
		*s = s.normalized()
		from = s.State
		s.State = StateClosed
		s.Failures = 0
		s.ProbeInFlight = false
	})
	if err != nil {
		b.log.Warn("failed to record breaker success", zap.Error(err))
		return
	}
	b.transitioned(from, st.State)
}

func (b *Breaker) RecordFailure(ctx context.Context) {
	now := b.clock.Now()
	var from State
	st, err := b.store.Update(ctx, func(s *BreakerState) {
		*s = s.normalized()
		from = s.State
		s.Failures++
		s.LastFailure = now
		s.ProbeInFlight = false
		if s.State == StateHalfOpen || s.Failures >= b.cfg.FailureThreshold {
			s.State = StateOpen
		}
	})
	if err != nil {
		b.log.Warn("failed to record breaker failure", zap.Error(err))
		return
	}
	b.transitioned(from, st.State)
}

func (b *Breaker) State(ctx context.Context) State {
	st, err := b.store.Load(ctx)
	if err != nil {
		b.log.Warn("failed to load breaker state", zap.Error(err))
		return StateClosed
	}
	return st.normalized().State
}

func (b *Breaker) Snapshot(ctx context.Context) Snapshot {
	st, err := b.store.Load(ctx)
	if err != nil {
		b.log.Warn("failed to load breaker state", zap.Error(err))
	}
	st = st.normalized()
	snap := Snapshot{
		State:            st.State,
		FailureCount:     st.Failures,
		FailureThreshold: b.cfg.FailureThreshold,
		RecoverySeconds:  int(b.cfg.RecoveryTimeout / time.Second),
	}
	if !st.LastFailure.IsZero() {
		last := st.LastFailure.UTC()
		snap.LastFailureTime = &last
	}
	return snap
}

func (b *Breaker) transitioned(from, to State) {
	if from == to {
		return
	}
	b.metrics.SetBreakerState(string(to))
	b.log.Info("circuit breaker state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}
