package common

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrPromiseTimeout is returned by WaitTimeout when the promise is still
// pending at the deadline.
var ErrPromiseTimeout = errors.New("promise not resolved in time")

// Promise is a single-assignment awaitable result. The first call to Resolve or
// Reject wins; later calls are ignored.
type Promise[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewPromise returns a pending Promise.
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolved returns a Promise that already holds v.
func Resolved[T any](v T) *Promise[T] {
	p := NewPromise[T]()
	p.Resolve(v)
	return p
}

// Rejected returns a Promise that already failed with err.
func Rejected[T any](err error) *Promise[T] {
	p := NewPromise[T]()
	p.Reject(err)
	return p
}

// Resolve sets the value.
func (p *Promise[T]) Resolve(v T) {
	p.once.Do(func() {
		p.value = v
		close(p.done)
	})
}

// Reject sets the error.
func (p *Promise[T]) Reject(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Done is closed once the promise is settled.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Ready reports whether the promise is settled, without blocking.
func (p *Promise[T]) Ready() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Get blocks until the promise is settled.
func (p *Promise[T]) Get() (T, error) {
	<-p.done
	return p.value, p.err
}

// Wait blocks until the promise is settled or ctx is done.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// WaitTimeout blocks for at most d of wall clock time. A non-positive d waits
// forever.
func (p *Promise[T]) WaitTimeout(d time.Duration) (T, error) {
	return p.WaitClock(clock.New(), d)
}

// WaitClock is WaitTimeout measured on c.
func (p *Promise[T]) WaitClock(c clock.Clock, d time.Duration) (T, error) {
	if d <= 0 {
		return p.Get()
	}
	t := c.Timer(d)
	defer t.Stop()
	select {
	case <-p.done:
		return p.value, p.err
	case <-t.C:
		var zero T
		return zero, ErrPromiseTimeout
	}
}
