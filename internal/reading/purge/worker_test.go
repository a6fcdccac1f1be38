package purge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/ruuviproxy/internal/clock"
	readingdomain "github.com/smallbiznis/ruuviproxy/internal/reading/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	readingdomain.Store
	batches []int64
	calls   int
	err     error
}

func (s *fakeStore) PurgeExpired(ctx context.Context, now int64, batchSize int) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.calls >= len(s.batches) {
		s.calls++
		return 0, nil
	}
	n := s.batches[s.calls]
	s.calls++
	return n, nil
}

type stubLock struct {
	granted  bool
	released bool
}

func (l *stubLock) Acquire(context.Context) (func(context.Context) error, bool, error) {
	if !l.granted {
		return nil, false, nil
	}
	return func(context.Context) error {
		l.released = true
		return nil
	}, true, nil
}

func newTestWorker(store readingdomain.Store, cfg Config) *Worker {
	return NewWorker(Params{
		Log:    zap.NewNop(),
		Store:  store,
		Clock:  clock.NewFakeClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
		Config: cfg,
	})
}

func TestRunOnceLoopsUntilShortBatch(t *testing.T) {
	store := &fakeStore{batches: []int64{10, 10, 3, 10}}
	w := newTestWorker(store, Config{BatchSize: 10})

	total, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(23), total)
	assert.Equal(t, 3, store.calls)
}

func TestRunOnceStopsAtBatchCap(t *testing.T) {
	store := &fakeStore{batches: []int64{5, 5, 5, 5}}
	w := newTestWorker(store, Config{BatchSize: 5, MaxBatchesRun: 2})

	total, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
	assert.Equal(t, 2, store.calls)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	store := &fakeStore{batches: []int64{1}}
	w := newTestWorker(store, Config{BatchSize: 10})
	w.lock = &stubLock{granted: false}

	total, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, store.calls)
}

func TestRunOnceReleasesLockOnError(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	w := newTestWorker(store, Config{BatchSize: 10})
	lock := &stubLock{granted: true}
	w.lock = lock

	_, err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, lock.released)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, 10*time.Minute, cfg.Interval)
}
