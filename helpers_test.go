package fusioncache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Keksclan/goFusionCache/storage"
	"go.uber.org/zap/zaptest"
)

// newTestCache returns a cache that logs through t and is closed on cleanup.
func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

// fakeClock is a manually advanced clock for WithClock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeStore is a map-backed storage.Store with injectable failures. It keeps
// expired entries so that expiry handling in the cache itself is observable.
type fakeStore struct {
	mu   sync.Mutex
	data map[string]storage.Entry

	getErr error
	setErr error
	delErr error

	gets, sets, dels int
	closed           bool
}

var _ storage.Store = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]storage.Entry)}
}

func (s *fakeStore) Get(_ context.Context, key string) (storage.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return storage.Entry{}, false, s.getErr
	}
	e, ok := s.data[key]
	return e, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key string, e storage.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = e
	return nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dels++
	if s.delErr != nil {
		return s.delErr
	}
	delete(s.data, key)
	return nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStore) put(key string, e storage.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = e
}

func (s *fakeStore) entry(key string) (storage.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	return e, ok
}

func (s *fakeStore) fail(get, set, del error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getErr, s.setErr, s.delErr = get, set, del
}

func (s *fakeStore) counts() (gets, sets, dels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.sets, s.dels
}

func entryOf(v any, exp time.Time) storage.Entry {
	return storage.Entry{Value: v, ExpiresAt: exp}
}
