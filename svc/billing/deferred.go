package billing

import (
	"context"
	"sync"
)

// deferred bridges a single callback invocation into an awaitable result.
// Each instance resolves exactly once; later resolutions are ignored.
type deferred[T any] struct {
	once   sync.Once
	done   chan struct{}
	result T
	err    error
}

func newDeferred[T any]() *deferred[T] {
	return &deferred[T]{done: make(chan struct{})}
}

func (d *deferred[T]) resolve(result T, err error) {
	d.once.Do(func() {
		d.result = result
		d.err = err
		close(d.done)
	})
}

// await blocks until the deferred resolves or the context is cancelled.
func (d *deferred[T]) await(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		return d.result, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
