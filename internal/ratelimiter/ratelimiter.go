// Package ratelimiter throttles object operations with a token bucket.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter caps the rate of object operations issued by a client.
//
// Tokens refill at the configured rate and a burst of operations may run
// back to back while the bucket is full.
//
// A nil *RateLimiter is valid and never throttles.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing opsPerSecond sustained operations and
// bursts of up to burst operations.
//
// Special cases:
//   - opsPerSecond = 0: unlimited
//   - burst = 0: one operation at a time
func New(opsPerSecond, burst uint) *RateLimiter {
	if opsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(opsPerSecond), int(burst)),
	}
}

// Allow reports whether one operation may run now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	if r == nil {
		return true
	}
	return r.limiter.Allow()
}

// Wait blocks until one operation may run or ctx is done.
//
// Returns:
//   - error: ctx.Err() if the context ends first, or an error when the
//     wait would certainly outlast the context deadline
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	return r.limiter.Wait(ctx)
}

// SetLimit changes the sustained rate. Zero removes the limit.
func (r *RateLimiter) SetLimit(opsPerSecond uint) {
	if r == nil {
		return
	}
	if opsPerSecond == 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	r.limiter.SetLimit(rate.Limit(opsPerSecond))
}

// Limit returns the sustained rate, or 0 when unlimited.
func (r *RateLimiter) Limit() uint {
	if r == nil || r.limiter.Limit() == rate.Inf {
		return 0
	}
	return uint(r.limiter.Limit())
}

// Burst returns the bucket capacity.
func (r *RateLimiter) Burst() int {
	if r == nil {
		return 0
	}
	return r.limiter.Burst()
}
