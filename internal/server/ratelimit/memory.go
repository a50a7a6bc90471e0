package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	start time.Time
	count int
}

// MemoryLimiter keeps counters in process memory, guarded by a mutex.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	buckets map[string]*bucket
	now     func() time.Time
}

// NewMemoryLimiter allows perWindow requests per key in each Window.
func NewMemoryLimiter(perWindow int) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   perWindow,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := m.now()
	start := windowStart(now)

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok || !b.start.Equal(start) {
		m.evict(start)
		b = &bucket{start: start}
		m.buckets[key] = b
	}

	if b.count >= m.limit {
		return false, untilNextWindow(now), nil
	}
	b.count++
	return true, 0, nil
}

// evict drops buckets from past windows. Caller holds mu.
func (m *MemoryLimiter) evict(current time.Time) {
	for k, b := range m.buckets {
		if b.start.Before(current) {
			delete(m.buckets, k)
		}
	}
}
