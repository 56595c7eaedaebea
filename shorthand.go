package fusioncache

import (
	"context"
	"time"
)

// EntryOptionsFor returns the cache's default options with Duration set to d.
func (c *Cache) EntryOptionsFor(d time.Duration) (EntryOptions, error) {
	return c.defaults.Duplicate(d)
}

// CreateEntryOptions returns the cache's default options adjusted by setup.
func (c *Cache) CreateEntryOptions(setup func(*EntryOptions)) EntryOptions {
	return c.defaults.DuplicateWith(setup)
}

// SetFor stores value under key for d.
func (c *Cache) SetFor(ctx context.Context, key string, value any, d time.Duration) error {
	opts, err := c.EntryOptionsFor(d)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, value, opts)
}

// SetWith stores value under key using the default options adjusted by setup.
func (c *Cache) SetWith(ctx context.Context, key string, value any, setup func(*EntryOptions)) error {
	return c.Set(ctx, key, value, c.CreateEntryOptions(setup))
}

// RemoveWith removes key using the default options adjusted by setup.
func (c *Cache) RemoveWith(ctx context.Context, key string, setup func(*EntryOptions)) error {
	return c.Remove(ctx, key, c.CreateEntryOptions(setup))
}

// Go methods cannot take type parameters, so the typed shorthands are free
// functions.

// GetOrSetFor is GetOrSet with the default options and Duration d.
func GetOrSetFor[T any](ctx context.Context, c *Cache, key string, factory func(ctx context.Context) (T, error), d time.Duration) (T, error) {
	opts, err := c.EntryOptionsFor(d)
	if err != nil {
		var zero T
		return zero, err
	}
	return GetOrSet(ctx, c, key, factory, opts)
}

// GetOrSetWith is GetOrSet with the default options adjusted by setup.
func GetOrSetWith[T any](ctx context.Context, c *Cache, key string, factory func(ctx context.Context) (T, error), setup func(*EntryOptions)) (T, error) {
	return GetOrSet(ctx, c, key, factory, c.CreateEntryOptions(setup))
}

// TryGetWith is TryGet with the default options adjusted by setup.
func TryGetWith[T any](ctx context.Context, c *Cache, key string, setup func(*EntryOptions)) (TryGetResult[T], error) {
	return TryGet[T](ctx, c, key, c.CreateEntryOptions(setup))
}

// GetOrDefaultWith is GetOrDefault with the default options adjusted by
// setup.
func GetOrDefaultWith[T any](ctx context.Context, c *Cache, key string, def T, setup func(*EntryOptions)) (T, error) {
	return GetOrDefault(ctx, c, key, def, c.CreateEntryOptions(setup))
}
