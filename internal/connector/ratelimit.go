// Copyright 2025 James Ross
package connector

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps golang.org/x/time/rate for a connector's private,
// per-process rate clock. It is never shared across workers: each
// connector instance owns its own limiter.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter builds a limiter allowing requestsPerSecond steady-state,
// with a burst of one (no bursting beyond the configured rate). A
// non-positive requestsPerSecond disables limiting entirely.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	if requestsPerSecond <= 0 {
		return &RateLimiter{limiter: nil}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

// Wait blocks until the next request is permitted, or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}
