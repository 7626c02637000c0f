package lock

import (
	"context"
	"sync"
)

// Group deduplicates concurrent operations by key. While an operation for a
// key is running, further Do calls for that key wait for and share its
// result instead of starting another one.
type Group[T any] struct {
	mu    sync.Mutex
	calls map[string]*call[T]
}

type call[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Do runs fn for key unless a run is already in flight, in which case it
// waits for that run. shared reports whether the result came from another
// caller's run. A waiting caller whose ctx ends gets ctx.Err(); the running
// operation is not affected.
func (g *Group[T]) Do(ctx context.Context, key string, fn func() (T, error)) (val T, err error, shared bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*call[T])
	}
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		val, err = c.wait(ctx)
		return val, err, true
	}
	c := &call[T]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.calls, key)
		g.mu.Unlock()
		close(c.done)
	}()
	c.val, c.err = fn()
	return c.val, c.err, false
}

// Wait blocks until the in-flight run for key, if any, finishes. found is
// false when nothing was running; Wait never starts a run.
func (g *Group[T]) Wait(ctx context.Context, key string) (val T, err error, found bool) {
	g.mu.Lock()
	c, ok := g.calls[key]
	g.mu.Unlock()
	if !ok {
		return val, nil, false
	}
	val, err = c.wait(ctx)
	return val, err, true
}

// InFlight reports whether a run for key is currently executing.
func (g *Group[T]) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.calls[key]
	return ok
}

func (c *call[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
