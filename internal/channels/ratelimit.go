package channels

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
	// memory exhaustion from attackers rotating source IPs/keys.
	maxTrackedKeys = 4096

	// webhookRatePerSecond and webhookBurst bound inbound webhook delivery
	// per channel/sender key (DM floods, duplicate bridge retries, etc).
	webhookRatePerSecond = 0.5 // 30/minute, matching the prior sliding window
	webhookBurst         = 30
)

// WebhookRateLimiter bounds the number of tracked rate-limit keys to prevent
// memory exhaustion from rotating source keys (DoS), backed by a
// golang.org/x/time/rate token bucket per key. Safe for concurrent use.
type WebhookRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewWebhookRateLimiter creates a bounded webhook rate limiter.
func NewWebhookRateLimiter() *WebhookRateLimiter {
	return &WebhookRateLimiter{limiters: make(map[string]*rate.Limiter)}
}

// Allow returns true if the key is within rate limits.
// Enforces a hard cap on tracked keys by evicting arbitrary entries once
// at capacity — acceptable since a reset false-positive only costs a single
// sender an extra wait, not a correctness violation.
func (r *WebhookRateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	lim, ok := r.limiters[key]
	if !ok {
		if len(r.limiters) >= maxTrackedKeys {
			for k := range r.limiters {
				delete(r.limiters, k)
				break
			}
		}
		lim = rate.NewLimiter(rate.Limit(webhookRatePerSecond), webhookBurst)
		r.limiters[key] = lim
	}

	return lim.Allow()
}
