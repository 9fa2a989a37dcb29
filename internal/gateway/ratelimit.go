package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
// memory exhaustion from attackers rotating connection ids.
const maxTrackedKeys = 4096

// RateLimiter applies a per-client token bucket to chat.send calls.
// rpm <= 0 disables limiting. Safe for concurrent use.
type RateLimiter struct {
	rpm   int
	burst int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter allowing rpm requests per minute per key
// with the given burst.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		rpm:     rpm,
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Enabled reports whether limiting is active.
func (r *RateLimiter) Enabled() bool { return r.rpm > 0 }

// Allow reports whether the key may proceed.
func (r *RateLimiter) Allow(key string) bool {
	if !r.Enabled() {
		return true
	}

	r.mu.Lock()
	lim, ok := r.buckets[key]
	if !ok {
		if len(r.buckets) >= maxTrackedKeys {
			for k := range r.buckets {
				delete(r.buckets, k)
				break
			}
		}
		lim = rate.NewLimiter(rate.Limit(float64(r.rpm)/60.0), r.burst)
		r.buckets[key] = lim
	}
	r.mu.Unlock()

	return lim.Allow()
}

// Forget drops a key's bucket (client disconnect).
func (r *RateLimiter) Forget(key string) {
	r.mu.Lock()
	delete(r.buckets, key)
	r.mu.Unlock()
}
