package http

import "golang.org/x/time/rate"

// rateLimiter throttles inbound frames of a single connection.
type rateLimiter struct {
	limiter *rate.Limiter
}

// newRateLimiter returns a token bucket refilled at perSecond with room for burst frames.
// A non-positive rate disables limiting.
func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if perSecond <= 0 {
		return &rateLimiter{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *rateLimiter) allow() bool {
	if r == nil || r.limiter == nil {
		return true
	}
	return r.limiter.Allow()
}
