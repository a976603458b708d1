// Package task implements the single-goroutine cooperative scheduler that
// drives suspension and resumption of async functions, generators, and
// `for await..of` (spec §5). It is modeled directly on the teacher's
// js/eventloop package: Start(fn) runs fn synchronously, then keeps
// draining callbacks registered via RegisterCallback until none remain,
// the same "run one VU's worth of JS in lockstep with async resumptions"
// shape the teacher uses to drive goja.Runtime from a single goroutine.
package task

import (
	"fmt"
	"sync"
)

// Callback is a unit of resumed work: a continuation scheduled onto the
// loop from an async boundary (an awaited future resolving, a generator
// `next()` call queued from outside, a registered host callback firing).
type Callback func() error

// Loop is a cooperative, single-goroutine scheduler. All evaluator state
// is touched only while a Callback runs on the loop's own goroutine;
// RegisterCallback may be called from another goroutine (e.g. a real I/O
// callback) but the returned function only enqueues — it never executes
// inline on the calling goroutine.
type Loop struct {
	mu       sync.Mutex
	pending  int
	queue    chan Callback
	done     chan struct{}
}

// New creates an idle Loop.
func New() *Loop {
	return &Loop{queue: make(chan Callback, 64)}
}

// Start runs fn synchronously, then drains any callbacks fn (or callbacks
// it scheduled) registered via RegisterCallback, blocking until the
// pending count returns to zero. It returns the first error raised by fn
// or by any drained callback.
func (l *Loop) Start(fn func() error) error {
	l.mu.Lock()
	if l.pending != 0 {
		l.mu.Unlock()
		return fmt.Errorf("task loop already running")
	}
	l.done = make(chan struct{})
	l.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	return l.drain()
}

func (l *Loop) drain() error {
	for {
		l.mu.Lock()
		pending := l.pending
		l.mu.Unlock()
		if pending == 0 {
			return nil
		}
		select {
		case cb := <-l.queue:
			err := cb()
			l.mu.Lock()
			l.pending--
			l.mu.Unlock()
			if err != nil {
				return err
			}
		}
	}
}

// RegisterCallback reserves a pending slot and returns a function that,
// when called (from any goroutine), enqueues the given Callback to run on
// the loop. The evaluator calls this once per suspension point (await,
// yield-resumption scheduling, for-await-of iterator step) before
// releasing control back to the loop.
func (l *Loop) RegisterCallback() func(Callback) {
	l.mu.Lock()
	l.pending++
	l.mu.Unlock()
	return func(cb Callback) {
		l.queue <- cb
	}
}

// Cancelled is returned by a Callback when the host's cooperative
// cancellation flag was observed set (spec §5 "Cancellation and
// timeouts").
type Cancelled struct{}

func (Cancelled) Error() string { return "sandbox evaluation cancelled" }

// CancelFlag is the cooperative cancellation hook: the host may set it at
// any time from another goroutine; the evaluator polls it between
// statements.
type CancelFlag struct {
	mu        sync.Mutex
	cancelled bool
}

func (c *CancelFlag) Set() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

func (c *CancelFlag) IsSet() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}
