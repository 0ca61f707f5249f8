// Package coalesce collapses bursts of "something changed" notifications into
// at most one redraw per fixed window, without ever dropping the last change.
//
// The window opens on the first notification and is never extended by later
// ones, so redraw latency is bounded by the window and redraws are at least a
// window apart. Disposal flushes a pending change synchronously.
package coalesce

import (
	"time"

	"github.com/rescale/cloudfm/internal/constants"
	"github.com/rescale/cloudfm/internal/eventloop"
)

// Scheduler arms the window deadline. eventloop.Loop satisfies it.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) eventloop.Timer
}

// Coalescer is loop-confined: Notify, Dispose and the flush callback all run
// on the scheduler's loop.
type Coalescer struct {
	sched  Scheduler
	window time.Duration
	flush  func()

	timer    eventloop.Timer // non-nil while a window is open
	pending  bool
	disposed bool
	flushes  int
}

// New creates a coalescer that calls flush at most once per window.
// A non-positive window uses constants.CoalesceWindow.
func New(sched Scheduler, window time.Duration, flush func()) *Coalescer {
	if window <= 0 {
		window = constants.CoalesceWindow
	}
	return &Coalescer{
		sched:  sched,
		window: window,
		flush:  flush,
	}
}

// Window returns the coalescing window length.
func (c *Coalescer) Window() time.Duration {
	return c.window
}

// Notify records that a redraw is owed and opens a window if none is open.
// Calling Notify after Dispose is a programming error and panics.
func (c *Coalescer) Notify() {
	if c.disposed {
		panic("coalesce: Notify called after Dispose")
	}
	c.pending = true
	if c.timer == nil {
		c.timer = c.sched.AfterFunc(c.window, c.expire)
	}
}

func (c *Coalescer) expire() {
	if c.disposed {
		return
	}
	c.timer = nil
	if !c.pending {
		return
	}
	c.pending = false
	c.invoke()
}

// Dispose cancels the open window and flushes a pending change before
// returning. Later calls do nothing.
func (c *Coalescer) Dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.pending {
		c.pending = false
		c.invoke()
	}
}

func (c *Coalescer) invoke() {
	c.flushes++
	if c.flush != nil {
		c.flush()
	}
}

// Pending reports whether a change is waiting for the window to close.
func (c *Coalescer) Pending() bool {
	return c.pending
}

// Disposed reports whether Dispose has been called.
func (c *Coalescer) Disposed() bool {
	return c.disposed
}

// Flushes returns how many times the flush callback has been invoked.
func (c *Coalescer) Flushes() int {
	return c.flushes
}
