package completion

import (
	"context"
	"sync"
	"time"
)

// Future is a single-fire completion signal carrying a value of type T.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture creates an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve completes the future with v. Returns false if it was already settled.
func (f *Future[T]) Resolve(v T) bool {
	return f.settle(v, nil)
}

// Reject completes the future with err. Returns false if it was already settled.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	won := false
	f.once.Do(func() {
		won = true
		f.value = v
		f.err = err
		close(f.done)
	})
	return won
}

// Done is closed once the future is settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether Resolve or Reject has already been called.
func (f *Future[T]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the settled value and error. It must only be called after Done is closed.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.value, f.err
}

// Wait blocks until the future settles or ctx is done. A context
// cancellation rejects the future so concurrent waiters observe the same outcome.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		f.Reject(ctx.Err())
	}
	return f.Result()
}

// WaitTimeout is Wait with a hard deadline. When the deadline elapses before
// the future settles, the future is rejected with a *TimeoutError. A
// non-positive timeout waits on ctx alone.
func (f *Future[T]) WaitTimeout(ctx context.Context, timeout time.Duration) (T, error) {
	if timeout <= 0 {
		return f.Wait(ctx)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
	case <-timer.C:
		f.Reject(&TimeoutError{Timeout: timeout})
	case <-ctx.Done():
		f.Reject(ctx.Err())
	}
	return f.Result()
}

// RejectAfter arms a timer that rejects the future with a *TimeoutError after
// timeout. The returned stop function disarms it. Firing after the future has
// settled is a no-op.
func (f *Future[T]) RejectAfter(timeout time.Duration, onExpire func()) (stop func() bool) {
	timer := time.AfterFunc(timeout, func() {
		if f.Reject(&TimeoutError{Timeout: timeout}) && onExpire != nil {
			onExpire()
		}
	})
	return timer.Stop
}
