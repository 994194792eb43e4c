// Package pool bounds how many cdpmux browsers run at once: each Allocate
// launches a fresh browser once a slot is free, and Release shuts it down.
//
// Grounded on the teacher's pool.go (Pool/Res/PoolOption, port-range
// allocation and lazy runner startup), generalized from the old
// runner.Runner-per-port model to cdpmux.Launch, since this core's
// Browser picks its own ephemeral remote-debugging-port rather than one
// assigned by the pool.
package pool

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/nilsrask/cdpmux"
)

// launcher matches cdpmux.Launch's signature, declared locally so tests can
// substitute a fake without starting real Chrome processes.
type launcher func(ctx context.Context, opts ...cdpmux.ExecOption) (*cdpmux.Browser, error)

// Pool hands out a bounded number of concurrently running browsers.
type Pool struct {
	size     int
	execOpts []cdpmux.ExecOption
	launch   launcher

	logf, errf func(string, ...any)

	mu   sync.Mutex
	cond *sync.Cond
	live map[*Res]struct{}
}

// Option configures a Pool.
type Option func(*Pool)

// Size sets the maximum number of concurrently leased browsers. Default 4.
func Size(n int) Option { return func(p *Pool) { p.size = n } }

// ExecOptions sets the cdpmux.ExecOption list every pooled browser launches
// with.
func ExecOptions(opts ...cdpmux.ExecOption) Option {
	return func(p *Pool) { p.execOpts = opts }
}

// WithLogf sets the informational logging func.
func WithLogf(f func(string, ...any)) Option { return func(p *Pool) { p.logf = f } }

// WithErrorf sets the error logging func.
func WithErrorf(f func(string, ...any)) Option { return func(p *Pool) { p.errf = f } }

// New returns a Pool configured by opts, backed by cdpmux.Launch.
func New(opts ...Option) *Pool {
	p := &Pool{
		size: 4,
		live: make(map[*Res]struct{}),
		logf: log.Printf,
	}
	p.launch = cdpmux.Launch
	for _, o := range opts {
		o(p)
	}
	if p.errf == nil {
		p.errf = func(s string, v ...any) { p.logf("ERROR: "+s, v...) }
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Res is a leased browser; the caller must call Release when done.
type Res struct {
	pool    *Pool
	browser *cdpmux.Browser
}

// Browser returns the leased browser.
func (r *Res) Browser() *cdpmux.Browser { return r.browser }

// Release shuts the browser down and frees its slot in the pool.
func (r *Res) Release() error {
	err := r.browser.Shutdown()

	r.pool.mu.Lock()
	delete(r.pool.live, r)
	r.pool.cond.Signal()
	r.pool.mu.Unlock()

	r.pool.logf("pool: released a browser, %d/%d in use", len(r.pool.live), r.pool.size)
	return err
}

// Allocate blocks until a slot is free, then launches a browser into it.
// The returned Res must be released by the caller.
//
// The slot is reserved in p.live before the lock is released, while the
// capacity check is still held: otherwise two callers can both observe a
// free slot, both unlock, and both launch, overrunning size. The
// reservation is rolled back if the launch itself fails.
func (p *Pool) Allocate(ctx context.Context) (*Res, error) {
	p.mu.Lock()
	for len(p.live) >= p.size {
		p.cond.Wait()
	}
	r := &Res{pool: p}
	p.live[r] = struct{}{}
	inUse := len(p.live)
	p.mu.Unlock()

	b, err := p.launch(ctx, p.execOpts...)
	if err != nil {
		p.mu.Lock()
		delete(p.live, r)
		p.cond.Signal()
		p.mu.Unlock()
		p.errf("pool: could not launch browser: %v", err)
		return nil, fmt.Errorf("pool allocate: %w", err)
	}
	r.browser = b

	p.logf("pool: allocated a browser, %d/%d in use", inUse, p.size)
	return r, nil
}

// Shutdown releases every currently leased browser.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	res := make([]*Res, 0, len(p.live))
	for r := range p.live {
		res = append(res, r)
	}
	p.mu.Unlock()

	var firstErr error
	for _, r := range res {
		if err := r.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
