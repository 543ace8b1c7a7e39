package magnolia

import (
	"context"
	"sync"
)

// Callback observes a settled operation. It is invoked exactly once.
type Callback[T any] func(T, error)

// Future is the result of one operation. It settles at most once; later
// settlements are ignored.
type Future[T any] struct {
	done chan struct{}

	mu        sync.Mutex
	settled   bool
	val       T
	err       error
	observers []Callback[T]
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// failed returns a future already settled with err.
func failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.settle(zero, err)
	return f
}

func (f *Future[T]) settle(v T, err error) {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return
	}
	f.settled, f.val, f.err = true, v, err
	observers := f.observers
	f.observers = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range observers {
		fn(v, err)
	}
}

// Done is closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx ends. A cancelled wait does
// not cancel the operation.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result inspects the future without blocking. settled is false while the
// operation is still running.
func (f *Future[T]) Result() (v T, settled bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val, f.settled, f.err
}

// Then registers fn to run once on settlement. If the future has already
// settled, fn runs immediately on the calling goroutine.
func (f *Future[T]) Then(fn Callback[T]) *Future[T] {
	if fn == nil {
		return f
	}
	f.mu.Lock()
	if !f.settled {
		f.observers = append(f.observers, fn)
		f.mu.Unlock()
		return f
	}
	v, err := f.val, f.err
	f.mu.Unlock()
	fn(v, err)
	return f
}
