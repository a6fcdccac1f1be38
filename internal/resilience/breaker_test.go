package resilience

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/ruuviproxy/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(threshold int) (*Breaker, *clock.FakeClock) {
	clk := clock.NewFakeClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	b := NewBreaker(NewMemoryStateStore(), clk, BreakerConfig{
		FailureThreshold: threshold,
		RecoveryTimeout:  60 * time.Second,
	}, nil, nil)
	return b, clk
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.True(t, b.CanExecute(ctx))
		b.RecordFailure(ctx)
	}
	assert.Equal(t, StateClosed, b.State(ctx))

	b.RecordFailure(ctx)
	assert.Equal(t, StateOpen, b.State(ctx))
	assert.False(t, b.CanExecute(ctx))
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()

	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	b.RecordSuccess(ctx)
	b.RecordFailure(ctx)
	b.RecordFailure(ctx)

	assert.Equal(t, StateClosed, b.State(ctx))
	assert.Equal(t, 2, b.Snapshot(ctx).FailureCount)
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	b, clk := newTestBreaker(1)
	ctx := context.Background()

	b.RecordFailure(ctx)
	require.Equal(t, StateOpen, b.State(ctx))

	clk.Advance(60 * time.Second)
	assert.False(t, b.CanExecute(ctx), "window is exclusive")

	clk.Advance(time.Second)
	assert.True(t, b.CanExecute(ctx))
	assert.Equal(t, StateHalfOpen, b.State(ctx))
	assert.False(t, b.CanExecute(ctx), "second caller while probe in flight")

	b.RecordSuccess(ctx)
	assert.Equal(t, StateClosed, b.State(ctx))
	assert.True(t, b.CanExecute(ctx))
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b, clk := newTestBreaker(5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.RecordFailure(ctx)
	}
	clk.Advance(61 * time.Second)
	require.True(t, b.CanExecute(ctx))

	b.RecordFailure(ctx)
	assert.Equal(t, StateOpen, b.State(ctx))
	assert.False(t, b.CanExecute(ctx))

	clk.Advance(61 * time.Second)
	assert.True(t, b.CanExecute(ctx))
}

func TestBreakerAbandonedProbeIsReplaced(t *testing.T) {
	b, clk := newTestBreaker(1)
	ctx := context.Background()

	b.RecordFailure(ctx)
	clk.Advance(61 * time.Second)
	require.True(t, b.CanExecute(ctx))
	require.False(t, b.CanExecute(ctx))

	clk.Advance(61 * time.Second)
	assert.True(t, b.CanExecute(ctx))
}

func TestBreakerSnapshot(t *testing.T) {
	b, clk := newTestBreaker(5)
	ctx := context.Background()

	snap := b.Snapshot(ctx)
	assert.Equal(t, StateClosed, snap.State)
	assert.Nil(t, snap.LastFailureTime)
	assert.Equal(t, 5, snap.FailureThreshold)
	assert.Equal(t, 60, snap.RecoverySeconds)

	b.RecordFailure(ctx)
	snap = b.Snapshot(ctx)
	require.NotNil(t, snap.LastFailureTime)
	assert.Equal(t, clk.Now(), *snap.LastFailureTime)
}

func TestDecodeStateRejectsUnknownState(t *testing.T) {
	_, err := decodeState(map[string]string{"state": "BROKEN"})
	assert.Error(t, err)

	st, err := decodeState(stringFields(encodeState(BreakerState{State: StateHalfOpen, Failures: 2, ProbeInFlight: true})))
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, st.State)
	assert.Equal(t, 2, st.Failures)
	assert.True(t, st.ProbeInFlight)
	assert.True(t, st.LastFailure.IsZero())
}

func stringFields(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = fmt.Sprint(v)
	}
	return out
}
