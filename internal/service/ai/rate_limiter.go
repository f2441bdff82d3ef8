package ai

import (
	"context"

	"golang.org/x/time/rate"
)

// DefaultRateLimit is the default requests per second sent to a provider.
const DefaultRateLimit = 10

// RateLimiter spaces provider calls shared by every ingestion worker, so
// parallel feeds do not multiply the request rate.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows qps requests per second with a burst of qps.
func NewRateLimiter(qps int) *RateLimiter {
	if qps <= 0 {
		qps = DefaultRateLimit
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(qps), qps)}
}

// Wait blocks until a request may be sent or ctx ends.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
