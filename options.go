package fusioncache

import (
	"time"

	"github.com/Keksclan/goFusionCache/breaker"
	"github.com/Keksclan/goFusionCache/metrics"
	"github.com/Keksclan/goFusionCache/ratelimit"
	"github.com/Keksclan/goFusionCache/storage"
	"github.com/Keksclan/goFusionCache/tracing"
	"go.uber.org/zap"
)

// Option configures a Cache.
type Option func(*config)

// WithName names the cache in logs, metric labels and span attributes.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithDefaultEntryOptions sets the baseline every shorthand operation
// duplicates. It is copied; later changes to o have no effect.
func WithDefaultEntryOptions(o EntryOptions) Option {
	return func(c *config) { c.defaultEntry = o }
}

// WithDefaultDuration sets only the Duration of the default entry options.
func WithDefaultDuration(d time.Duration) Option {
	return func(c *config) { c.defaultEntry.Duration = d }
}

// WithMemoryStore sizes the built-in ristretto store used as the first tier
// when no WithStore option is given.
func WithMemoryStore(maxCost int64) Option {
	return func(c *config) { c.l1MaxCost = maxCost }
}

// WithStore replaces the built-in memory store with s as the first tier. The
// cache takes ownership and closes s on Close.
func WithStore(s storage.Store) Option {
	return func(c *config) { c.l1 = s }
}

// WithDistributedStore adds s as the second tier, shared across processes.
// Reads fall through to it on a first-tier miss and writes go to it before
// the first tier.
func WithDistributedStore(s storage.Store) Option {
	return func(c *config) { c.l2 = s }
}

// WithDistributedCircuitBreaker skips the distributed tier while it keeps
// failing. Operations performed while the breaker is open behave as if no
// distributed tier were configured.
func WithDistributedCircuitBreaker(cfg breaker.Config) Option {
	return func(c *config) { c.l2Breaker = &cfg }
}

// WithFactoryRateLimit caps factory invocations across all keys to rps per
// second with the given burst.
func WithFactoryRateLimit(rps float64, burst int) Option {
	return func(c *config) { c.limiter = ratelimit.NewLimiter(rps, burst) }
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records operation counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithTracing emits one span per operation.
func WithTracing(cfg *tracing.Config) Option {
	return func(c *config) { c.tracing = cfg }
}

// WithClock overrides the clock used to compute and check expirations. The
// built-in memory store measures its TTLs against it too. Stores passed to
// WithStore or WithDistributedStore take their own clock option.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}
