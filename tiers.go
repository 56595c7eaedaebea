package fusioncache

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/Keksclan/goFusionCache/storage"
	"go.uber.org/zap"
)

const (
	tierL1 = "l1"
	tierL2 = "l2"
)

// lookup reads the first tier, then the distributed one. A distributed hit is
// copied into the first tier with its remaining lifetime.
func (c *Cache) lookup(ctx context.Context, key string, opts EntryOptions) (storage.Entry, string, bool, error) {
	e, ok, err := c.read(ctx, tierL1, c.l1, key)
	if err != nil {
		return storage.Entry{}, "", false, err
	}
	if ok {
		c.metrics.Hit(c.name, tierL1)
		return e, tierL1, true, nil
	}
	if !c.useDistributed(opts) {
		return storage.Entry{}, "", false, nil
	}

	var skipped bool
	skipped, err = c.distributed(ctx, func() error {
		var err error
		e, ok, err = c.read(ctx, tierL2, c.l2, key)
		return err
	})
	if err != nil || skipped || !ok {
		return storage.Entry{}, "", false, err
	}

	if err := c.l1.Set(ctx, key, e); err != nil {
		c.metrics.StorageError(c.name, tierL1, "set")
		c.log.Warn("promoting distributed entry failed", zap.String("key", key), zap.Error(err))
	}
	c.metrics.Hit(c.name, tierL2)
	return e, tierL2, true, nil
}

// read returns the live entry under key in store. Expired entries are
// deleted on sight and reported as a miss.
func (c *Cache) read(ctx context.Context, tier string, store storage.Store, key string) (storage.Entry, bool, error) {
	e, ok, err := store.Get(ctx, key)
	if err != nil {
		c.storageError(tier, "get", key, err)
		return storage.Entry{}, false, storageFailure(err, tier, "get", key)
	}
	if !ok {
		return storage.Entry{}, false, nil
	}
	if e.Expired(c.now()) {
		if err := store.Delete(ctx, key); err != nil {
			c.log.Debug("deleting expired entry failed",
				zap.String("tier", tier), zap.String("key", key), zap.Error(err))
		}
		return storage.Entry{}, false, nil
	}
	return e, true, nil
}

// write stores value in the distributed tier first and the first tier
// second. When the first tier fails after the distributed write succeeded,
// its stale copy is evicted so readers fall through to the new value.
func (c *Cache) write(ctx context.Context, key string, value any, opts EntryOptions) error {
	e := storage.Entry{
		Value:     value,
		ExpiresAt: c.now().Add(opts.Duration + jitter(opts.JitterMaxDuration)),
		Cost:      opts.Size,
	}

	if c.useDistributed(opts) {
		_, err := c.distributed(ctx, func() error { return c.l2.Set(ctx, key, e) })
		if err != nil {
			c.storageError(tierL2, "set", key, err)
			return storageFailure(err, tierL2, "set", key)
		}
	}

	if err := c.l1.Set(ctx, key, e); err != nil {
		c.storageError(tierL1, "set", key, err)
		if derr := c.l1.Delete(ctx, key); derr != nil {
			c.log.Warn("evicting stale entry failed", zap.String("key", key), zap.Error(derr))
		}
		return storageFailure(err, tierL1, "set", key)
	}
	return nil
}

// remove deletes the distributed copy first so that a failure leaves both
// tiers as they were.
func (c *Cache) remove(ctx context.Context, key string, opts EntryOptions) error {
	if c.useDistributed(opts) {
		_, err := c.distributed(ctx, func() error { return c.l2.Delete(ctx, key) })
		if err != nil {
			c.storageError(tierL2, "delete", key, err)
			return storageFailure(err, tierL2, "delete", key)
		}
	}
	if err := c.l1.Delete(ctx, key); err != nil {
		c.storageError(tierL1, "delete", key, err)
		return storageFailure(err, tierL1, "delete", key)
	}
	return nil
}

func (c *Cache) useDistributed(opts EntryOptions) bool {
	return c.l2 != nil && !opts.SkipDistributedCache
}

// distributed runs fn against the distributed tier behind the breaker.
// skipped reports that the breaker is open and fn did not run. Failures
// caused by the caller's own cancellation are not held against the store.
func (c *Cache) distributed(ctx context.Context, fn func() error) (skipped bool, err error) {
	b := c.l2Breaker
	if b == nil {
		return false, fn()
	}
	if !b.Allow() {
		return true, nil
	}
	err = fn()
	switch {
	case err == nil:
		b.OnSuccess()
	case ctx.Err() == nil:
		b.OnFailure()
	}
	return false, err
}

func (c *Cache) storageError(tier, op, key string, err error) {
	c.metrics.StorageError(c.name, tier, op)
	c.log.Warn("storage operation failed",
		zap.String("tier", tier), zap.String("op", op), zap.String("key", key), zap.Error(err))
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}
