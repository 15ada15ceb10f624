package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter counts hits per key in fixed windows. It serves the
// single-instance setup; deployments with more than one replica use the
// redis limiter so all replicas share one window.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string]bucket
	sweepAt time.Time
}

type bucket struct {
	hits      int
	expiresAt time.Time
}

func NewMemory(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string]bucket),
		sweepAt: time.Now().Add(window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !now.Before(l.sweepAt) {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok || !b.expiresAt.After(now) {
		b = bucket{expiresAt: now.Add(l.window)}
	}

	if b.hits >= l.limit {
		return false, b.expiresAt.Sub(now), nil
	}

	b.hits++
	l.buckets[key] = b

	return true, 0, nil
}

// sweep drops buckets whose window already ended. Caller holds the lock.
func (l *MemoryLimiter) sweep(now time.Time) {
	for key, b := range l.buckets {
		if !b.expiresAt.After(now) {
			delete(l.buckets, key)
		}
	}
	l.sweepAt = now.Add(l.window)
}
