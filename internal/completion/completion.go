// Package completion adapts callback-style native completions into
// blocking calls that resolve exactly once.
package completion

import (
	"context"
	"sync"
)

// Future holds the outcome of one native call.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// New creates an unresolved future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve records the outcome. Only the first call has any effect; it
// reports whether this call was the one that resolved the future.
func (f *Future[T]) Resolve(value T, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		resolved = true
		close(f.done)
	})
	return resolved
}

// Done is closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Await starts a native call and waits for its completion callback.
// onDuplicate, if non-nil, is invoked for every completion after the first.
//
// ctx is checked once, before the call is started. A call that was started
// always runs to completion and its outcome is returned, so native state
// never changes behind a reported failure.
func Await[T any](ctx context.Context, start func(complete func(T, error)), onDuplicate func()) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	f := New[T]()
	start(func(value T, err error) {
		if !f.Resolve(value, err) && onDuplicate != nil {
			onDuplicate()
		}
	})
	return f.Wait()
}
