// Package resolve adapts blocking calls into cancellable ones that settle
// exactly once.
//
// A blocking call runs on a worker goroutine while the caller waits on its
// context. Whichever finishes first settles the Promise; the other side's
// attempt is dropped. The worker is never abandoned mid-write: it always
// finishes into a settled promise and exits.
package resolve

import (
	"context"
	"sync"
	"time"
)

// Promise holds the outcome of one pending call. The zero value is not
// usable; create one with NewPromise.
type Promise[T any] struct {
	mu      sync.Mutex
	settled bool
	done    chan struct{}
	value   T
	err     error
}

// NewPromise returns a pending promise
func NewPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// Resolve settles the promise with a value. It reports false if the promise
// was already settled, in which case v is discarded.
func (p *Promise[T]) Resolve(v T) bool {
	return p.settle(v, nil)
}

// Reject settles the promise with an error. It reports false if the promise
// was already settled, in which case err is discarded.
func (p *Promise[T]) Reject(err error) bool {
	var zero T
	return p.settle(zero, err)
}

func (p *Promise[T]) settle(v T, err error) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.settled {
		return false
	}
	p.settled = true
	p.value = v
	p.err = err
	close(p.done)
	return true
}

// Settled reports whether the promise has been resolved or rejected
func (p *Promise[T]) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

// Done is closed once the promise settles
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the promise settles and returns its outcome
func (p *Promise[T]) Wait() (T, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Call runs fn on a worker goroutine and waits for it, the context, or the
// timeout, whichever comes first.
//
// If ctx is already done, fn is never started and ctx.Err() is returned.
// If ctx is cancelled while fn runs, Call returns ctx.Err() immediately and
// the eventual result of fn is discarded. If timeout elapses first, Call
// returns context.DeadlineExceeded. A timeout <= 0 disables the bound.
//
// fn receives a context that is cancelled when Call returns, so well-behaved
// workers (exec.CommandContext, for example) stop promptly.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	p := NewPromise[T]()

	go func() {
		v, err := fn(workCtx)
		if err != nil {
			p.Reject(err)
			return
		}
		p.Resolve(v)
	}()

	select {
	case <-p.Done():
	case <-ctx.Done():
		p.Reject(ctx.Err())
	case <-timer:
		p.Reject(context.DeadlineExceeded)
	}

	return p.Wait()
}

// Run is Call for blocking functions that produce no value
func Run(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := Call(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
