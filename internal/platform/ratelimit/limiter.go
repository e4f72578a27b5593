// Package ratelimit throttles registry mutations per client. The sliding
// window avoids the burst-at-boundary problem of fixed windows.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result reports the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether a keyed request may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// InMemory is a process-local sliding window limiter. Not distributed; use
// the Redis limiter when running more than one instance.
type InMemory struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	buckets   map[string][]time.Time
	clock     func() time.Time
	lastSweep time.Time
}

// NewInMemory builds a limiter allowing limit requests per window per key.
func NewInMemory(limit int, window time.Duration) *InMemory {
	return &InMemory{
		limit:   limit,
		window:  window,
		buckets: make(map[string][]time.Time),
		clock:   time.Now,
	}
}

func (l *InMemory) Allow(_ context.Context, key string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	cutoff := now.Add(-l.window)
	l.sweep(now, cutoff)

	timestamps := prune(l.buckets[key], cutoff)

	if len(timestamps) >= l.limit {
		l.buckets[key] = timestamps
		return &Result{
			Allowed:   false,
			Limit:     l.limit,
			Remaining: 0,
			ResetAt:   timestamps[0].Add(l.window),
		}, nil
	}

	timestamps = append(timestamps, now)
	l.buckets[key] = timestamps

	return &Result{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit - len(timestamps),
		ResetAt:   timestamps[0].Add(l.window),
	}, nil
}

// Reset clears the window for a key.
func (l *InMemory) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// sweep drops buckets whose windows have fully expired so the map does not
// grow without bound as caller keys churn. Runs at most once per window.
// Caller must hold l.mu.
func (l *InMemory) sweep(now time.Time, cutoff time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	for key, timestamps := range l.buckets {
		if pruned := prune(timestamps, cutoff); len(pruned) == 0 {
			delete(l.buckets, key)
		}
	}
}

func prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for ; i < len(timestamps); i++ {
		if timestamps[i].After(cutoff) {
			break
		}
	}
	return timestamps[i:]
}
