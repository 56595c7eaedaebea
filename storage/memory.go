package storage

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Memory is an in-process store backed by ristretto. Values are kept as-is,
// without copying or serialization.
type Memory struct {
	rc  *ristretto.Cache[string, Entry]
	now func() time.Time
}

var _ Store = (*Memory)(nil)

// MemoryOption configures a [Memory] store.
type MemoryOption func(*Memory)

// WithMemoryClock sets the clock that ExpiresAt is measured against when it
// is turned into a ristretto TTL. It must be the clock the entries were
// stamped with.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemory creates a new Memory store. maxCost controls the total cost the
// store can hold; with the default entry cost of 1 it is the entry count.
func NewMemory(maxCost int64, opts ...MemoryOption) (*Memory, error) {
	if maxCost <= 0 {
		maxCost = 1
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters:        maxCost * 10,
		MaxCost:            maxCost,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	m := &Memory{rc: rc, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Get retrieves the entry stored under key.
func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := m.rc.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Set stores e under key. The ristretto TTL is derived from e.ExpiresAt so
// dead entries are also reclaimed by ristretto's own sweeper.
func (m *Memory) Set(_ context.Context, key string, e Entry) error {
	var ttl time.Duration
	if !e.ExpiresAt.IsZero() {
		ttl = e.ExpiresAt.Sub(m.now())
		if ttl <= 0 {
			m.rc.Del(key)
			m.rc.Wait()
			return nil
		}
	}
	if !m.rc.SetWithTTL(key, e, cost(e.Cost), ttl) {
		return ErrRejected
	}
	m.rc.Wait()
	return nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.rc.Del(key)
	m.rc.Wait()
	return nil
}

// Close stops ristretto's background goroutines.
func (m *Memory) Close() error {
	m.rc.Close()
	return nil
}
