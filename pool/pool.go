// Package pool bounds concurrent access to a limited set of backend
// connections with a counting admission gate. Callers block (without busy
// waiting) until a slot frees up; a granted slot is always returned on
// every exit path through the handle or the scoped Do form.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/coreops/coreops/metrics"
)

// ErrInvalidSize is returned when constructing a pool with a non-positive
// capacity.
var ErrInvalidSize = errors.New("coreops: pool size must be positive")

// Pool is a bounded admission gate over max connection slots.
type Pool struct {
	sem    *semaphore.Weighted
	max    int64
	active atomic.Int64
}

// Status reports the gate's counters. Available is always Max - Active.
type Status struct {
	Active    int
	Max       int
	Available int
}

// New returns a Pool with max slots.
func New(max int) (*Pool, error) {
	if max <= 0 {
		return nil, ErrInvalidSize
	}
	return &Pool{sem: semaphore.NewWeighted(int64(max)), max: int64(max)}, nil
}

// Conn is a single granted slot. Release returns it; releasing twice is a
// no-op.
type Conn struct {
	p    *Pool
	once sync.Once
}

// Release returns the slot to the pool.
func (c *Conn) Release() {
	c.once.Do(func() {
		c.p.active.Add(-1)
		metrics.PoolActive.Dec()
		c.p.sem.Release(1)
	})
}

// Get blocks until a slot is free or ctx is done. The returned Conn must be
// released; prefer Do when the protected work fits a closure.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.active.Add(1)
	metrics.PoolActive.Inc()
	return &Conn{p: p}, nil
}

// Do runs fn while holding one slot, releasing it on success, error, panic
// and cancellation alike.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	c, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer c.Release()
	return fn(ctx)
}

// Status returns current active/max/available counts.
func (p *Pool) Status() Status {
	active := int(p.active.Load())
	return Status{
		Active:    active,
		Max:       int(p.max),
		Available: int(p.max) - active,
	}
}
