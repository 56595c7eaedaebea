// Package retry provides a generic retry helper with exponential backoff and
// jitter. fusioncache uses it inside the Redis store to ride out transient
// connection errors; the facade itself never retries.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent retries use
	// exponential back-off: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed back-off delay. Zero leaves it uncapped.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// RetryIf reports whether err is transient. A nil RetryIf retries
	// nothing.
	RetryIf func(error) bool
}

// Do calls fn up to cfg.MaxAttempts times, retrying only while cfg.RetryIf
// accepts the returned error. Between attempts an exponential back-off delay
// (with optional jitter) is applied.
//
// The context is checked before every retry; if ctx is done the function
// returns immediately with the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	for i := range attempts {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if i == attempts-1 || cfg.RetryIf == nil || !cfg.RetryIf(err) {
			return zero, err
		}

		timer := time.NewTimer(cfg.delay(i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, nil
}

// Run is [Do] for operations that produce no value.
func Run(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// delay is the pause before retry number attempt (0-indexed).
func (c Config) delay(attempt int) time.Duration {
	d := c.BaseDelay
	for range attempt {
		if d <= 0 || d > math.MaxInt64/2 || (c.MaxDelay > 0 && d >= c.MaxDelay) {
			break
		}
		d *= 2
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	if spread := time.Duration(float64(d) * c.Jitter); spread > 0 {
		d += rand.N(2*spread+1) - spread
	}
	return max(d, 0)
}
