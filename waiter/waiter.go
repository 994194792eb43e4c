// Package waiter implements the generic poll-until-condition-or-timeout
// utility (C7), used for waiting on the initial tab, a new tab by ID, and
// navigation milestones.
//
// Grounded on original_source's util::Wait::with_timeout(...).until(...)
// (src/browser/mod.rs), translated into the teacher's functional-options
// idiom (allocate.go's ExecAllocatorOption) and the WaitFrame/GetRoot
// poll-with-sleep loops in handler.go, generalized with Go generics rather
// than a fixed return type.
//
// Go methods can't introduce their own type parameters, so Until is a
// package-level generic function rather than a method on Waiter.
package waiter

import (
	"context"
	"errors"
	"time"
)

// defaultTimeout mirrors original_source's 10s wait_for_initial_tab default.
const defaultTimeout = 10 * time.Second

// minInterval and maxInterval bound the poll backoff: original_source polls
// on a fixed interval, but this core doubles from minInterval up to
// maxInterval so a condition that resolves quickly doesn't pay the full
// interval cost, while a slow one doesn't spin.
const (
	minInterval = 100 * time.Millisecond
	maxInterval = 1 * time.Second
)

// ErrTimeout is returned when a Waiter's timeout elapses before the
// predicate ever reports true.
var ErrTimeout = errors.New("waiter: timed out")

// Waiter polls a predicate until it succeeds, the timeout elapses, or its
// context is cancelled.
type Waiter struct {
	timeout time.Duration
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithTimeout overrides the default 10s timeout.
func WithTimeout(d time.Duration) Option {
	return func(w *Waiter) { w.timeout = d }
}

// New returns a Waiter configured by opts.
func New(opts ...Option) *Waiter {
	w := &Waiter{timeout: defaultTimeout}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Until polls predicate, doubling the interval between tries from 100ms up
// to a 1s ceiling, until predicate returns (v, true), w's timeout elapses
// (ErrTimeout), or ctx is cancelled (ctx.Err()).
//
// predicate is tried once immediately, so an already-true condition costs
// no wait.
func Until[V any](ctx context.Context, w *Waiter, predicate func() (V, bool)) (V, error) {
	var zero V

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if v, ok := predicate(); ok {
		return v, nil
	}

	interval := minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if v, ok := predicate(); ok {
				return v, nil
			}
			interval *= 2
			if interval > maxInterval {
				interval = maxInterval
			}
			timer.Reset(interval)
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return zero, ErrTimeout
			}
			return zero, ctx.Err()
		}
	}
}
