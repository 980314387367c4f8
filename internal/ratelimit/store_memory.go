package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count     int
	expiresAt time.Time
}

// InMemoryCounterStore counts hits per key in process memory. Windows are
// pruned lazily on access.
type InMemoryCounterStore struct {
	mu      sync.Mutex
	windows map[string]*window
	clock   func() time.Time
}

func NewInMemoryCounterStore() *InMemoryCounterStore {
	return &InMemoryCounterStore{
		windows: make(map[string]*window),
		clock:   time.Now,
	}
}

// WithClock overrides the store's clock. Test hook.
func (s *InMemoryCounterStore) WithClock(clock func() time.Time) *InMemoryCounterStore {
	s.clock = clock
	return s
}

func (s *InMemoryCounterStore) Incr(_ context.Context, key string, windowSize time.Duration) (int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()

	w, ok := s.windows[key]
	if !ok || !w.expiresAt.After(now) {
		w = &window{expiresAt: now.Add(windowSize)}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.expiresAt.Sub(now), nil
}
