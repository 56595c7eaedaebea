package fusioncache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Keksclan/goFusionCache/breaker"
	"github.com/Keksclan/goFusionCache/internal/flight"
	"github.com/Keksclan/goFusionCache/metrics"
	"github.com/Keksclan/goFusionCache/ratelimit"
	"github.com/Keksclan/goFusionCache/storage"
	"github.com/Keksclan/goFusionCache/tracing"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Factory computes the value for a key on a miss. The context it receives
// keeps the values of the caller that started the computation and is
// cancelled only when every caller waiting on it has given up, or when
// [EntryOptions.FactoryTimeout] elapses.
type Factory func(ctx context.Context) (any, error)

// Result is the outcome of TryGet. Value is meaningful only when Found is
// true.
type Result struct {
	Value any
	Found bool
}

// Cache is a get-or-compute cache in front of one or two storage tiers. All
// methods are safe for concurrent use.
type Cache struct {
	name     string
	defaults EntryOptions

	l1        storage.Store
	l2        storage.Store
	l2Breaker *breaker.Breaker

	flights flight.Group
	limiter *ratelimit.Limiter
	log     *zap.Logger
	metrics *metrics.Metrics
	tracing *tracing.Config
	now     func() time.Time

	closed atomic.Bool
}

// New creates a Cache. Without options it keeps entries for DefaultDuration
// in an in-process ristretto store.
func New(opts ...Option) (*Cache, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.defaultEntry.Duration < 0 {
		return nil, invalidArgument("fusioncache: negative default duration %s", cfg.defaultEntry.Duration)
	}

	c := &Cache{
		name:     cfg.name,
		defaults: cfg.defaultEntry,
		l1:       cfg.l1,
		l2:       cfg.l2,
		limiter:  cfg.limiter,
		log:      cfg.logger.Named("fusioncache").With(zap.String("cache", cfg.name)),
		metrics:  cfg.metrics,
		tracing:  cfg.tracing,
		now:      cfg.now,
	}
	if c.l1 == nil {
		mem, err := storage.NewMemory(cfg.l1MaxCost, storage.WithMemoryClock(cfg.now))
		if err != nil {
			return nil, errors.Wrap(err, "fusioncache: create memory store")
		}
		c.l1 = mem
	}
	if cfg.l2Breaker != nil && c.l2 != nil {
		bcfg := *cfg.l2Breaker
		user := bcfg.OnStateChange
		bcfg.OnStateChange = func(from, to breaker.State) {
			c.log.Warn("distributed cache breaker changed state",
				zap.Stringer("from", from), zap.Stringer("to", to))
			if user != nil {
				user(from, to)
			}
		}
		c.l2Breaker = breaker.New(bcfg)
	}
	return c, nil
}

// Name returns the name the cache was created with.
func (c *Cache) Name() string { return c.name }

// DefaultEntryOptions returns a copy of the cache-wide baseline options.
func (c *Cache) DefaultEntryOptions() EntryOptions { return c.defaults }

// GetOrSet returns the live value stored under key. On a miss it runs factory
// once for all concurrent callers of the same key, stores the result when
// opts.Duration is positive and hands it to every caller still waiting.
//
// A caller whose ctx ends gets ErrCancelled without affecting the other
// waiters. When the last waiter leaves, the factory's context is cancelled
// and its result is discarded.
func (c *Cache) GetOrSet(ctx context.Context, key string, factory Factory, opts EntryOptions) (v any, err error) {
	const op = "GetOrSet"
	if err := c.check(ctx, op, key); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, invalidArgument("fusioncache: nil factory for %q", key)
	}

	ctx, span := c.tracing.Start(ctx, op, c.name, key)
	var attrs []attribute.KeyValue
	defer func() { tracing.End(span, err, attrs...) }()

	e, tier, found, err := c.lookup(ctx, key, opts)
	if err != nil {
		return nil, c.fail(ctx, op, key, err)
	}
	if found {
		attrs = append(attrs, tracing.Hit(true), tracing.Tier(tier))
		return e.Value, nil
	}
	attrs = append(attrs, tracing.Hit(false))
	c.metrics.Miss(c.name)

	v, err, joined := c.flights.Do(ctx, key, func(fctx context.Context) (any, error) {
		return c.compute(fctx, key, factory, opts)
	})
	if joined {
		c.metrics.Coalesced(c.name)
		c.log.Debug("joined in-flight factory", zap.String("key", key))
	}
	if err != nil {
		return nil, c.fail(ctx, op, key, err)
	}
	return v, nil
}

// TryGet returns the live value stored under key without computing anything.
func (c *Cache) TryGet(ctx context.Context, key string, opts EntryOptions) (res Result, err error) {
	const op = "TryGet"
	if err := c.check(ctx, op, key); err != nil {
		return Result{}, err
	}

	ctx, span := c.tracing.Start(ctx, op, c.name, key)
	var attrs []attribute.KeyValue
	defer func() { tracing.End(span, err, attrs...) }()

	e, tier, found, err := c.lookup(ctx, key, opts)
	if err != nil {
		return Result{}, c.fail(ctx, op, key, err)
	}
	attrs = append(attrs, tracing.Hit(found))
	if !found {
		c.metrics.Miss(c.name)
		return Result{}, nil
	}
	attrs = append(attrs, tracing.Tier(tier))
	return Result{Value: e.Value, Found: true}, nil
}

// GetOrDefault returns the live value stored under key, or def when there is
// none. Nothing is written.
func (c *Cache) GetOrDefault(ctx context.Context, key string, def any, opts EntryOptions) (any, error) {
	res, err := c.TryGet(ctx, key, opts)
	if err != nil {
		return nil, err
	}
	if !res.Found {
		return def, nil
	}
	return res.Value, nil
}

// Set stores value under key for opts.Duration, replacing any previous entry.
// A non-positive duration removes the key instead.
func (c *Cache) Set(ctx context.Context, key string, value any, opts EntryOptions) (err error) {
	const op = "Set"
	if err := c.check(ctx, op, key); err != nil {
		return err
	}
	if !opts.cacheable() {
		return c.Remove(ctx, key, opts)
	}

	ctx, span := c.tracing.Start(ctx, op, c.name, key)
	defer func() { tracing.End(span, err) }()

	if err := c.write(ctx, key, value, opts); err != nil {
		return c.fail(ctx, op, key, err)
	}
	return nil
}

// Remove deletes key from every tier. Removing a missing key succeeds.
func (c *Cache) Remove(ctx context.Context, key string, opts EntryOptions) (err error) {
	const op = "Remove"
	if err := c.check(ctx, op, key); err != nil {
		return err
	}

	ctx, span := c.tracing.Start(ctx, op, c.name, key)
	defer func() { tracing.End(span, err) }()

	if err := c.remove(ctx, key, opts); err != nil {
		return c.fail(ctx, op, key, err)
	}
	return nil
}

// Close releases both tiers. Operations started afterwards fail with
// ErrClosed. Close is idempotent.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if c.l2 != nil {
		err = errors.CombineErrors(err, c.l2.Close())
	}
	err = errors.CombineErrors(err, c.l1.Close())
	return errors.Wrap(err, "fusioncache: close")
}

// compute runs on the flight goroutine for a key nobody has found in
// storage. Its errors already carry their kind.
func (c *Cache) compute(ctx context.Context, key string, factory Factory, opts EntryOptions) (any, error) {
	// A flight that just finished may have filled the first tier between our
	// miss and the registration of this one.
	if e, ok, err := c.read(ctx, tierL1, c.l1, key); err == nil && ok {
		return e.Value, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "fusioncache: factory rate limit for %q", key), ErrFactoryFailed)
	}

	c.metrics.FactoryCall(c.name)
	c.log.Debug("running factory", zap.String("key", key))

	fctx := ctx
	if opts.FactoryTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, opts.FactoryTimeout)
		defer cancel()
	}
	v, err := factory(fctx)
	if err != nil {
		c.metrics.FactoryError(c.name)
		c.log.Warn("factory failed", zap.String("key", key), zap.Error(err))
		return nil, errors.Mark(err, ErrFactoryFailed)
	}

	// A result whose waiters have all left is not stored. A waiter leaving
	// after this check does not undo the write below.
	if ctx.Err() != nil {
		c.log.Debug("discarding abandoned factory result", zap.String("key", key))
		return nil, ctx.Err()
	}

	if opts.cacheable() {
		if err := c.write(ctx, key, v, opts); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (c *Cache) check(ctx context.Context, op, key string) error {
	if c.closed.Load() {
		return errors.Wrapf(ErrClosed, "fusioncache: %s %q", op, key)
	}
	if key == "" {
		return invalidArgument("fusioncache: %s with empty key", op)
	}
	if ctx.Err() != nil {
		c.metrics.Cancelled(c.name)
		return cancelled(ctx, op, key)
	}
	return nil
}

func (c *Cache) fail(ctx context.Context, op, key string, err error) error {
	err = classify(ctx, op, key, err)
	if errors.Is(err, ErrCancelled) {
		c.metrics.Cancelled(c.name)
	}
	return err
}
