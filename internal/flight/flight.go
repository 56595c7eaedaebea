// Package flight coalesces concurrent computations for the same key. Unlike
// golang.org/x/sync/singleflight, every caller waits under its own context and
// the computation is cancelled once the last waiter has gone.
package flight

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// Func computes the value for a key. Its context carries the values of the
// caller that started the computation, but is cancelled only when every
// waiter has left.
type Func func(ctx context.Context) (any, error)

// call is one in-flight computation.
type call struct {
	done chan struct{}
	val  any
	err  error

	// guarded by Group.mu
	waiters int
	cancel  context.CancelFunc
}

// Group is a registry of in-flight computations keyed by string. The zero
// value is ready to use.
type Group struct {
	mu    sync.Mutex
	calls map[string]*call
}

// Do returns the outcome of the computation for key, starting fn in a new
// goroutine when none is running. joined reports whether the caller attached
// to a computation started by someone else.
//
// If ctx ends first, Do returns ctx.Err() for this caller only; the
// computation keeps running for the remaining waiters.
func (g *Group) Do(ctx context.Context, key string, fn Func) (v any, err error, joined bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call)
	}
	c, joined := g.calls[key]
	if joined {
		c.waiters++
	} else {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call{
			done:    make(chan struct{}),
			waiters: 1,
			cancel:  cancel,
		}
		g.calls[key] = c
		go g.run(fctx, key, c, fn)
	}
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val, c.err, joined
	case <-ctx.Done():
		// A finished result wins over a simultaneous cancellation.
		select {
		case <-c.done:
			return c.val, c.err, joined
		default:
		}
		g.leave(key, c)
		return nil, ctx.Err(), joined
	}
}

// InFlight reports whether a computation for key is currently registered.
func (g *Group) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.calls[key]
	return ok
}

// Waiters returns the number of callers waiting on the computation for key.
func (g *Group) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}

// leave detaches one waiter. The last one out cancels the computation and
// unregisters it so the next caller starts afresh.
func (g *Group) leave(key string, c *call) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c.waiters--
	if c.waiters > 0 {
		return
	}
	c.cancel()
	if g.calls[key] == c {
		delete(g.calls, key)
	}
}

func (g *Group) run(ctx context.Context, key string, c *call, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			c.val = nil
			c.err = errors.Newf("flight: computation for %q panicked: %v", key, r)
		}
		g.mu.Lock()
		if g.calls[key] == c {
			delete(g.calls, key)
		}
		g.mu.Unlock()
		c.cancel()
		close(c.done)
	}()
	c.val, c.err = fn(ctx)
}
