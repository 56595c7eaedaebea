// Package fusioncache is a get-or-compute cache. Callers ask for a key
// together with a factory; the cache returns the stored value while it lives
// and otherwise runs the factory exactly once for all concurrent callers of
// that key, storing the result for the requested duration.
//
// Values live in an in-process ristretto store and, optionally, in a
// distributed tier such as Redis shared by several processes:
//
//	c, err := fusioncache.New(
//		fusioncache.WithDefaultDuration(time.Minute),
//		fusioncache.WithDistributedStore(storage.NewRedis(rdb)),
//	)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	user, err := fusioncache.GetOrSetFor(ctx, c, "user:1", loadUser, 5*time.Minute)
//
// Every caller waits under its own context. A caller that gives up receives
// ErrCancelled while the others keep waiting; once the last one has gone the
// factory's context is cancelled and its result is dropped.
//
// Errors carry one of the kinds ErrInvalidArgument, ErrFactoryFailed,
// ErrStorage, ErrCancelled, ErrTypeMismatch or ErrClosed. Use
// github.com/cockroachdb/errors.Is to match them.
package fusioncache
