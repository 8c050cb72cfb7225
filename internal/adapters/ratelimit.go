package adapters

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a minimum inter-request interval for a single
// adapter instance. State is private to that instance: since each
// adapter serializes its own calls through its own limiter, no
// cross-adapter lock is required (spec.md §5).
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewRateLimiter builds a limiter enforcing interval between Wait calls.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Wait blocks until interval has elapsed since the previous Wait
// returned, or ctx is canceled.
func (r *RateLimiter) Wait(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.last.IsZero() {
		r.last = time.Now()
		return
	}

	elapsed := time.Since(r.last)
	if elapsed < r.interval {
		select {
		case <-time.After(r.interval - elapsed):
		case <-ctx.Done():
		}
	}
	r.last = time.Now()
}
