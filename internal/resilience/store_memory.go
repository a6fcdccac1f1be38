package resilience

import (
	"context"
	"sync"
)

// memoryStateStore keeps breaker state for this process only.
type memoryStateStore struct {
	mu    sync.Mutex
	state BreakerState
}

func NewMemoryStateStore() StateStore {
	return &memoryStateStore{state: BreakerState{State: StateClosed}}
}

func (m *memoryStateStore) Load(context.Context) (BreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *memoryStateStore) Update(_ context.Context, fn func(*BreakerState)) (BreakerState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
	return m.state, nil
}
