package fusioncache

import "time"

// EntryOptions controls how a single operation reads and writes an entry. It
// is a plain value: every derivation returns an independent copy, so options
// handed to one call can never be changed by another.
//
// Only Duration is required; the zero value of every other field keeps the
// behavior of a cache that does not know about it.
type EntryOptions struct {
	// Duration is the time to live, measured from the moment of the write.
	// Zero or negative means the value is not cached: Set degrades to a
	// delete and GetOrSet computes without storing.
	Duration time.Duration

	// JitterMaxDuration adds a random extra TTL in [0, JitterMaxDuration) at
	// write time so that entries written together do not expire together.
	JitterMaxDuration time.Duration

	// FactoryTimeout bounds a single factory run. Zero means no bound.
	FactoryTimeout time.Duration

	// Size is the cost charged against size-aware stores. Values <= 0
	// count as 1.
	Size int64

	// SkipDistributedCache bypasses the distributed tier for both reads and
	// writes of this operation.
	SkipDistributedCache bool
}

// Duplicate returns a copy of o with Duration replaced by d. A negative d is
// rejected with ErrInvalidArgument; zero is allowed and disables caching.
func (o EntryOptions) Duplicate(d time.Duration) (EntryOptions, error) {
	if d < 0 {
		return EntryOptions{}, invalidArgument("fusioncache: negative duration %s", d)
	}
	o.Duration = d
	return o, nil
}

// DuplicateWith returns a copy of o after letting setup adjust it. A nil setup
// returns an exact copy. The pointer handed to setup refers to a scratch copy;
// keeping it and writing through it later has no effect on the result.
func (o EntryOptions) DuplicateWith(setup func(*EntryOptions)) EntryOptions {
	if setup != nil {
		scratch := o
		setup(&scratch)
		o = scratch
	}
	return o
}

func (o EntryOptions) cacheable() bool {
	return o.Duration > 0
}
