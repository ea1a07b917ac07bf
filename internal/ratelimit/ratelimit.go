// Package ratelimit throttles chat turns per session and HTTP requests per
// client with token buckets.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// entry tracks the bucket for a single key.
type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per key, refilled at perMinute tokens per
// minute up to burst. Idle buckets are evicted by Run.
type Limiter struct {
	mu        sync.Mutex
	entries   map[string]*entry
	limit     rate.Limit
	burst     int
	idleAfter time.Duration
	now       func() time.Time
}

// New creates a limiter. A non-positive perMinute disables limiting.
func New(perMinute, burst int) *Limiter {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		entries:   make(map[string]*entry),
		limit:     limit,
		burst:     burst,
		idleAfter: 10 * time.Minute,
		now:       time.Now,
	}
}

// Allow consumes one token for key, reporting false when none is left.
func (l *Limiter) Allow(key string) bool {
	return l.allow(key, l.limit)
}

// AllowWithLimit is Allow with a per-key refill rate. A non-positive
// perMinute uses the limiter's default. The rate is fixed when the key's
// bucket is created.
func (l *Limiter) AllowWithLimit(key string, perMinute int) bool {
	limit := l.limit
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	return l.allow(key, limit)
}

func (l *Limiter) allow(key string, limit rate.Limit) bool {
	if limit == rate.Inf {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// Reset clears the state for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Run evicts idle buckets every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-ctx.Done():
			return
		}
	}
}

func (l *Limiter) evictIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.idleAfter)
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
		}
	}
}
