package fusioncache

import (
	"context"

	"github.com/Keksclan/goFusionCache/storage"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// TryGetResult is the typed outcome of TryGet. Value is the zero value of T
// when Found is false.
type TryGetResult[T any] struct {
	Value T
	Found bool
}

// GetOrSet is the typed form of [Cache.GetOrSet].
func GetOrSet[T any](ctx context.Context, c *Cache, key string, factory func(ctx context.Context) (T, error), opts EntryOptions) (T, error) {
	var zero T
	if factory == nil {
		return zero, invalidArgument("fusioncache: nil factory for %q", key)
	}
	v, err := c.GetOrSet(ctx, key, func(ctx context.Context) (any, error) {
		return factory(ctx)
	}, opts)
	if err != nil {
		return zero, err
	}
	return convert[T](key, v)
}

// TryGet is the typed form of [Cache.TryGet].
func TryGet[T any](ctx context.Context, c *Cache, key string, opts EntryOptions) (TryGetResult[T], error) {
	res, err := c.TryGet(ctx, key, opts)
	if err != nil || !res.Found {
		return TryGetResult[T]{}, err
	}
	v, err := convert[T](key, res.Value)
	if err != nil {
		return TryGetResult[T]{}, err
	}
	return TryGetResult[T]{Value: v, Found: true}, nil
}

// GetOrDefault is the typed form of [Cache.GetOrDefault].
func GetOrDefault[T any](ctx context.Context, c *Cache, key string, def T, opts EntryOptions) (T, error) {
	res, err := TryGet[T](ctx, c, key, opts)
	if err != nil {
		var zero T
		return zero, err
	}
	if !res.Found {
		return def, nil
	}
	return res.Value, nil
}

// convert turns a stored value into T. Values held in memory are asserted
// directly; values read back from a serializing store are decoded.
func convert[T any](key string, v any) (T, error) {
	var zero T
	if t, ok := v.(T); ok {
		return t, nil
	}
	if raw, ok := v.(storage.Raw); ok {
		var t T
		if err := msgpack.Unmarshal(raw, &t); err != nil {
			return zero, errors.Mark(errors.Wrapf(err, "fusioncache: decode %q as %T", key, zero), ErrTypeMismatch)
		}
		return t, nil
	}
	if v == nil {
		return zero, nil
	}
	return zero, errors.Mark(errors.Newf("fusioncache: value of %q is %T, not %T", key, v, zero), ErrTypeMismatch)
}
