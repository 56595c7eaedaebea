package storage

import (
	"context"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/Keksclan/goFusionCache/retry"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultQueryTimeout bounds every Redis round trip unless overridden with
// [WithQueryTimeout].
const DefaultQueryTimeout = 5 * time.Second

// Redis stores msgpack-encoded entries in Redis hashes (field "v" holds the
// value, field "e" the expiration in unix milliseconds) and relies on native
// key expiry. The caller owns the client; Close is a no-op.
type Redis struct {
	rdb     redis.UniversalClient
	prefix  string
	timeout time.Duration
	retry   retry.Config
	now     func() time.Time
}

var _ Store = (*Redis)(nil)

// RedisOption configures a [Redis] store.
type RedisOption func(*Redis)

// WithPrefix namespaces every key as "prefix:key".
func WithPrefix(p string) RedisOption {
	return func(r *Redis) { r.prefix = p }
}

// WithQueryTimeout sets the per-operation timeout.
func WithQueryTimeout(d time.Duration) RedisOption {
	return func(r *Redis) { r.timeout = d }
}

// WithRetry retries operations that fail with transient network errors.
// When cfg.RetryIf is nil, [IsTransient] is used.
func WithRetry(cfg retry.Config) RedisOption {
	return func(r *Redis) {
		if cfg.RetryIf == nil {
			cfg.RetryIf = IsTransient
		}
		r.retry = cfg
	}
}

// WithRedisClock sets the clock ExpiresAt is measured against when it is
// turned into a native key TTL.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRedis returns a store backed by client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		rdb:     client,
		timeout: DefaultQueryTimeout,
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *Redis) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, r.timeout)
}

// Get reads the entry stored under key.
func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()

	vals, err := retry.Do(qctx, r.retry, func(ctx context.Context) ([]any, error) {
		return r.rdb.HMGet(ctx, r.key(key), "v", "e").Result()
	})
	if err != nil {
		return Entry{}, false, errors.Wrapf(err, "redis: get %q", key)
	}
	if len(vals) != 2 || vals[0] == nil {
		return Entry{}, false, nil
	}

	v, ok := vals[0].(string)
	if !ok {
		return Entry{}, false, errors.Newf("redis: unexpected value type %T for %q", vals[0], key)
	}
	e := Entry{Value: Raw(v)}
	if s, ok := vals[1].(string); ok {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Entry{}, false, errors.Wrapf(err, "redis: parse expiration of %q", key)
		}
		if ms > 0 {
			e.ExpiresAt = time.UnixMilli(ms)
		}
	}
	return e, true, nil
}

// Set writes e under key inside a MULTI/EXEC block so the value and its
// expiration are applied together or not at all. An entry that is already
// dead under the store clock removes the key instead.
func (r *Redis) Set(ctx context.Context, key string, e Entry) error {
	data, err := Encode(e.Value)
	if err != nil {
		return err
	}

	var (
		expMs int64
		ttl   time.Duration
	)
	if !e.ExpiresAt.IsZero() {
		expMs = e.ExpiresAt.UnixMilli()
		ttl = e.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			return r.Delete(ctx, key)
		}
	}

	qctx, cancel := r.queryCtx(ctx)
	defer cancel()

	k := r.key(key)
	err = retry.Run(qctx, r.retry, func(ctx context.Context) error {
		_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, "v", data, "e", expMs)
			if ttl > 0 {
				pipe.PExpire(ctx, k, ttl)
			} else {
				pipe.Persist(ctx, k)
			}
			return nil
		})
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "redis: set %q", key)
	}
	return nil
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()

	err := retry.Run(qctx, r.retry, func(ctx context.Context) error {
		return r.rdb.Del(ctx, r.key(key)).Err()
	})
	if err != nil {
		return errors.Wrapf(err, "redis: delete %q", key)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the client.
func (r *Redis) Close() error {
	return nil
}

// IsTransient reports whether err looks like a connection-level failure worth
// retrying. Redis protocol errors and cancellations are permanent.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
