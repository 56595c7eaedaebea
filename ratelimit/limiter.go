// Package ratelimit provides a token-bucket limiter backed by
// golang.org/x/time/rate. fusioncache uses it to cap how often factories may
// run across all keys, protecting the backend a cache stampede would hit.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket limiter that paces factory invocations.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter creates a Limiter that permits rps invocations per second with
// the given burst size.
func NewLimiter(rps float64, burst int) *Limiter {
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Allow reports whether a single invocation may proceed right now.
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

// Wait blocks until an invocation may proceed or ctx ends. A nil Limiter never
// blocks.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return l.lim.Wait(ctx)
}
