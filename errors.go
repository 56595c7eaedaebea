package fusioncache

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Error kinds. Errors returned by the cache carry one of these marks while
// keeping the original cause in the chain; match them with
// github.com/cockroachdb/errors.Is.
var (
	// ErrInvalidArgument reports an empty key, a nil factory or a negative
	// duration passed to [EntryOptions.Duplicate].
	ErrInvalidArgument = errors.New("fusioncache: invalid argument")

	// ErrFactoryFailed reports that the factory returned an error, panicked
	// or exceeded [EntryOptions.FactoryTimeout]. The message is the
	// factory's own.
	ErrFactoryFailed = errors.New("fusioncache: factory failed")

	// ErrStorage reports that a storage tier could not complete a read,
	// write or delete.
	ErrStorage = errors.New("fusioncache: storage failure")

	// ErrCancelled reports that the caller's context ended before the
	// operation completed. The context error stays in the chain.
	ErrCancelled = errors.New("fusioncache: cancelled")

	// ErrTypeMismatch reports that a typed helper could not convert the
	// stored value to the requested type.
	ErrTypeMismatch = errors.New("fusioncache: type mismatch")

	// ErrClosed reports an operation on a closed cache.
	ErrClosed = errors.New("fusioncache: cache closed")
)

func invalidArgument(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}

func cancelled(ctx context.Context, op, key string) error {
	return errors.Mark(errors.Wrapf(ctx.Err(), "fusioncache: %s %q", op, key), ErrCancelled)
}

func storageFailure(err error, tier, op, key string) error {
	return errors.Mark(errors.Wrapf(err, "fusioncache: %s %s %q", tier, op, key), ErrStorage)
}

// classify maps an error observed by a caller to the taxonomy above. Errors
// already carrying a kind pass through; anything else seen after the caller's
// context ended is a cancellation.
func classify(ctx context.Context, op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrFactoryFailed),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrClosed):
		return err
	case ctx.Err() != nil:
		return cancelled(ctx, op, key)
	case errors.Is(err, ErrStorage):
		return err
	default:
		// Only a recovered factory panic reaches here.
		return errors.Mark(err, ErrFactoryFailed)
	}
}
