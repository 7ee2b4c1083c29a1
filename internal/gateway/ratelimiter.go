package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter caps request-frame throughput per connection at requestsPerMinute,
// bursting up to burst. A zero or negative rate disables limiting entirely,
// matching the teacher's rate_limit_rpm <= 0 convention.
type RateLimiter struct {
	rpm   int
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter builds a limiter; rpm <= 0 disables it.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	return &RateLimiter{rpm: rpm, burst: burst, limiters: make(map[string]*rate.Limiter)}
}

// Enabled reports whether limiting is active.
func (r *RateLimiter) Enabled() bool { return r.rpm > 0 }

// Allow reports whether connID may make another request right now.
func (r *RateLimiter) Allow(connID string) bool {
	if !r.Enabled() {
		return true
	}
	r.mu.Lock()
	lim, ok := r.limiters[connID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), r.burst)
		r.limiters[connID] = lim
	}
	r.mu.Unlock()
	return lim.Allow()
}

// Forget drops a connection's limiter state on disconnect.
func (r *RateLimiter) Forget(connID string) {
	r.mu.Lock()
	delete(r.limiters, connID)
	r.mu.Unlock()
}
