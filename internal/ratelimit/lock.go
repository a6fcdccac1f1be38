package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/ruuviproxy/internal/config"
)

const keyPurgeLock = "ruuvi:purge:lock"

// compare-and-delete so a replica never drops a lease it no longer holds
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var errLeaseTTL = errors.New("purge lease ttl must be positive")

// PurgeLock serializes expired-row purges across replicas. The lease lives
// for one purge interval, so a crashed holder frees it on the next tick.
type PurgeLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewPurgeLock(cfg config.Config, client *redis.Client) *PurgeLock {
	if client == nil {
		return nil
	}
	ttl := time.Duration(cfg.Purge.IntervalSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PurgeLock{client: client, key: keyPurgeLock, ttl: ttl}
}

// Acquire returns a release func and whether this caller owns the lease.
// A nil PurgeLock always grants it.
func (p *PurgeLock) Acquire(ctx context.Context) (func(context.Context) error, bool, error) {
	if p == nil {
		return func(context.Context) error { return nil }, true, nil
	}
	if p.ttl <= 0 {
		return nil, false, errLeaseTTL
	}

	holder := uuid.NewString()
	granted, err := p.client.SetNX(ctx, p.key, holder, p.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !granted {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		return releaseLease.Run(ctx, p.client, []string{p.key}, holder).Err()
	}, true, nil
}
