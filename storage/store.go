// Package storage defines the contract between the fusioncache facade and the
// physical stores it writes to, together with adapters for an in-process
// ristretto cache, Redis and SQLite.
package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrRejected is returned by a store that dropped a write, for example under
// buffer contention or after Close.
var ErrRejected = errors.New("storage: write rejected")

// Entry is a single stored value together with its absolute expiration.
type Entry struct {
	// Value is the stored object. Serializing stores return [Raw] here.
	Value any

	// ExpiresAt is the wall-clock instant after which the entry is dead. The
	// zero time means the entry never expires.
	ExpiresAt time.Time

	// Cost is charged against the budget of size-aware stores. Values <= 0
	// count as 1.
	Cost int64
}

// Expired reports whether the entry is dead at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is the read/write/delete contract every backend satisfies. A single
// key is never observed half-written; the store may still fail with an I/O
// error, which callers must propagate.
type Store interface {
	// Get returns the entry stored under key. The boolean reports a hit.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Set writes e under key, replacing whatever was there.
	Set(ctx context.Context, key string, e Entry) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}

// Raw is a msgpack-encoded value read back from a serializing store. It is a
// distinct type so that a stored []byte and an encoded payload never get
// confused by a type assertion.
type Raw []byte

// Encode serializes v for a byte-oriented store. A Raw value is passed through
// untouched so that promoting an entry between serializing stores does not
// double-encode it.
func Encode(v any) ([]byte, error) {
	if r, ok := v.(Raw); ok {
		return r, nil
	}
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "storage: encode value")
	}
	return b, nil
}

func cost(c int64) int64 {
	if c <= 0 {
		return 1
	}
	return c
}
