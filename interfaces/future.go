package interfaces

import (
	"context"
	"sync"
)

// Future is the eventual result of an asynchronous repository operation. It
// resolves exactly once; later resolutions are ignored.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	resolved  bool
	value     T
	err       error
	callbacks []func(T, error)
}

// NewPromise returns an unresolved future and the function that resolves it.
func NewPromise[T any]() (*Future[T], func(T, error)) {
	f := &Future[T]{done: make(chan struct{})}
	return f, f.resolve
}

// Resolved returns a future already holding v.
func Resolved[T any](v T) *Future[T] {
	f, resolve := NewPromise[T]()
	resolve(v, nil)
	return f
}

// Failed returns a future already holding err.
func Failed[T any](err error) *Future[T] {
	f, resolve := NewPromise[T]()
	var zero T
	resolve(zero, err)
	return f
}

func (f *Future[T]) resolve(v T, err error) {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return
	}
	f.resolved = true
	f.value = v
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future resolves or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to run with the result. fn runs on the goroutine
// that resolves the future, or immediately if it is already resolved.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	v, err := f.value, f.err
	f.mu.Unlock()
	fn(v, err)
}

// Then returns a future holding fn applied to f's value. A failed f skips fn
// and propagates its error.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	next, resolve := NewPromise[U]()
	f.OnComplete(func(v T, err error) {
		if err != nil {
			var zero U
			resolve(zero, err)
			return
		}
		resolve(fn(v))
	})
	return next
}

// Ignore discards a future's value, keeping only its error.
func Ignore[T any](f *Future[T]) *Future[struct{}] {
	return Then(f, func(T) (struct{}, error) { return struct{}{}, nil })
}
