package common

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides thread-safe rate limiting. It bounds how quickly
// deferred work is drained so a burst of requests cannot monopolize a frame.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter with the specified events per second (rps)
// and burst size. A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// AllowAt reports whether an event may happen at t. Callers driving a simulated
// clock pass their own notion of now.
func (rl *RateLimiter) AllowAt(t time.Time) bool {
	return rl.limiter.AllowN(t, 1)
}
