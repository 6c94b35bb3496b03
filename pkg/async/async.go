package async

import (
	"context"
	"errors"
	"fmt"
)

// Future holds the eventual result of a function started with Go.
type Future[U any] struct {
	result U
	err    error
	done   chan struct{}
}

// Waiter is satisfied by every Future regardless of its result type.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Go runs fn in a new goroutine. A context that is already done short-cuts
// fn and resolves the future with ctx.Err(). Panics inside fn resolve the
// future with ErrPanic.
func Go[U any](ctx context.Context, fn func(context.Context) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				var zero U
				f.result, f.err = zero, fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()

		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.result, f.err = fn(ctx)
	}()

	return f
}

// Await blocks until the future resolves or ctx is done.
func (f *Future[U]) Await(ctx context.Context) (U, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero U
		return zero, ctx.Err()
	}
}

// Wait is Await without the result.
func (f *Future[U]) Wait(ctx context.Context) error {
	_, err := f.Await(ctx)
	return err
}

// Done is closed once the future has resolved.
func (f *Future[U]) Done() <-chan struct{} {
	return f.done
}

// All waits for every waiter and joins their errors. Unlike a fail-fast
// wait, it always lets every future finish so partial results stay usable.
func All(ctx context.Context, waiters ...Waiter) error {
	if len(waiters) == 0 {
		return ErrNoFutures
	}
	errs := make([]error, 0, len(waiters))
	for _, w := range waiters {
		if err := w.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
