// Package flight provides a keyed single-flight primitive whose shared
// result is a future. Unlike golang.org/x/sync/singleflight the start
// function runs on the caller's goroutine, so side effects of starting an
// operation are visible as soon as Do returns.
package flight

import (
	"context"
	"sync"
)

// Future is the eventual result of one operation.
type Future[V any] struct {
	done chan struct{}
	once sync.Once
	val  V
	err  error
}

// NewFuture returns an unsettled future.
func NewFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// Settle records the result. Only the first call has an effect; it reports
// whether this call settled the future.
func (f *Future[V]) Settle(v V, err error) bool {
	settled := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the future settles.
func (f *Future[V]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the result is available.
func (f *Future[V]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future settles or ctx is done. Cancelling ctx only
// abandons the wait; the operation itself continues.
func (f *Future[V]) Wait(ctx context.Context) (V, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Group deduplicates concurrent operations by key.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*Future[V]
}

// Do returns the in-flight future for key, or calls start to create one.
// shared is true when an existing future was returned. The entry is removed
// once the future settles, so the next Do after that starts afresh.
//
// start is called with the group lock held and must not call back into g.
func (g *Group[K, V]) Do(key K, start func() *Future[V]) (f *Future[V], shared bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.m == nil {
		g.m = make(map[K]*Future[V])
	}
	if f, ok := g.m[key]; ok && !f.Settled() {
		return f, true
	}

	f = start()
	if f.Settled() {
		return f, false
	}
	g.m[key] = f
	go g.forget(key, f)
	return f, false
}

func (g *Group[K, V]) forget(key K, f *Future[V]) {
	<-f.Done()
	g.mu.Lock()
	if g.m[key] == f {
		delete(g.m, key)
	}
	g.mu.Unlock()
}

// InFlight reports whether an unsettled operation exists for key.
func (g *Group[K, V]) InFlight(key K) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	f, ok := g.m[key]
	return ok && !f.Settled()
}

// Len returns the number of tracked entries, including settled ones not yet
// removed.
func (g *Group[K, V]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}
