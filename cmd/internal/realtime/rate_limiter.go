package realtime

import (
	"sync"
	"time"
)

// RateLimiter enforces the per-connection envelope budget over a sliding
// window. Each websocket connection owns one instance; there is no shared
// state across connections.
type RateLimiter struct {
	mu     sync.Mutex
	events []time.Time
	limit  int
	window time.Duration
}

// NewRateLimiter constructs a RateLimiter, substituting the gateway defaults
// for non-positive inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		events: make([]time.Time, 0, limit+8),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether an event at time "now" fits the window and records it
// when it does. Timestamps arrive in call order, so expiry is a prefix drop.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cut := now.Add(-r.window)
	expired := 0
	for expired < len(r.events) && !r.events[expired].After(cut) {
		expired++
	}
	if expired > 0 {
		r.events = append(r.events[:0], r.events[expired:]...)
	}

	if len(r.events) >= r.limit {
		return false
	}
	r.events = append(r.events, now)
	return true
}
