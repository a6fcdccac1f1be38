package resilience

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	defaultBreakerKey = "ruuvi:breaker:upstream"
	maxWatchRetries   = 10
)

// redisStateStore shares breaker state between proxy replicas. Updates use
// WATCH/MULTI so concurrent writers retry instead of clobbering each other.
type redisStateStore struct {
	client *redis.Client
	key    string
}

func NewRedisStateStore(client *redis.Client, key string) StateStore {
	if key == "" {
		key = defaultBreakerKey
	}
	return &redisStateStore{client: client, key: key}
}

func (r *redisStateStore) Load(ctx context.Context) (BreakerState, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return BreakerState{}, err
	}
	return decodeState(fields)
}

func (r *redisStateStore) Update(ctx context.Context, fn func(*BreakerState)) (BreakerState, error) {
	var result BreakerState
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, r.key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		state, err := decodeState(fields)
		if err != nil {
			return err
		}
		fn(&state)
		result = state

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.key, encodeState(state))
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, r.key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return BreakerState{}, err
	}
	return BreakerState{}, fmt.Errorf("resilience: breaker update contended after %d attempts", maxWatchRetries)
}

func encodeState(s BreakerState) map[string]any {
	probe := "0"
	if s.ProbeInFlight {
		probe = "1"
	}
	return map[string]any{
		"state":            string(s.normalized().State),
		"failures":         strconv.Itoa(s.Failures),
		"last_failure":     strconv.FormatInt(unixNano(s.LastFailure), 10),
		"probe":            probe,
		"probe_started_at": strconv.FormatInt(unixNano(s.ProbeStartedAt), 10),
	}
}

func decodeState(fields map[string]string) (BreakerState, error) {
	state := BreakerState{State: StateClosed}
	if len(fields) == 0 {
		return state, nil
	}
	if v := fields["state"]; v != "" {
		switch State(v) {
		case StateClosed, StateOpen, StateHalfOpen:
			state.State = State(v)
		default:
			return state, fmt.Errorf("resilience: unknown breaker state %q", v)
		}
	}
	var err error
	if state.Failures, err = atoiField(fields, "failures"); err != nil {
		return state, err
	}
	if state.LastFailure, err = timeField(fields, "last_failure"); err != nil {
		return state, err
	}
	if state.ProbeStartedAt, err = timeField(fields, "probe_started_at"); err != nil {
		return state, err
	}
	state.ProbeInFlight = fields["probe"] == "1"
	return state, nil
}

func atoiField(fields map[string]string, name string) (int, error) {
	v := fields[name]
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("resilience: field %s: %w", name, err)
	}
	return n, nil
}

func timeField(fields map[string]string, name string) (time.Time, error) {
	v := fields[name]
	if v == "" || v == "0" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("resilience: field %s: %w", name, err)
	}
	return time.Unix(0, n).UTC(), nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
