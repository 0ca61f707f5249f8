// Package eventloop provides the single-goroutine dispatcher that UI-facing
// components are confined to. Everything posted to a Loop runs one task at a
// time, in post order, so loop-confined state needs no locking.
package eventloop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rescale/cloudfm/internal/constants"
)

// ErrStopped is returned when work is handed to a loop that is no longer running.
var ErrStopped = errors.New("event loop stopped")

// Timer is a single-shot deadline whose callback runs on the loop.
type Timer interface {
	// Stop prevents the callback from running. Must be called on the loop.
	// Returns false if the callback already ran or the timer was already stopped.
	Stop() bool
}

// Dispatcher is the part of a Loop that loop-confined components depend on.
type Dispatcher interface {
	// Post queues fn to run on the loop. Returns false if the loop is stopped.
	Post(fn func()) bool
	// AfterFunc arms a single-shot deadline whose callback runs on the loop.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop runs posted functions serially on one goroutine.
type Loop struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	stopOnce sync.Once
	runOnce  sync.Once
}

// New creates a loop with the given queue capacity. It does nothing until Run is called.
func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = constants.EventLoopQueueSize
	}
	return &Loop{
		tasks: make(chan func(), queueSize),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Run executes posted tasks until ctx is cancelled or Stop is called.
// Tasks still queued at shutdown are discarded. Run may only be called once.
func (l *Loop) Run(ctx context.Context) {
	started := false
	l.runOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer close(l.done)

	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.quit:
			return
		}
	}
}

// Stop makes Run return after the task in progress. Idempotent.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues fn for execution on the loop. It blocks while the queue is full,
// so loop-side code must not flood its own queue.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.quit:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
// Calling it from the loop goroutine deadlocks.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc arms a deadline. When it expires, fn is posted to the loop unless
// the timer was stopped first.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			// Stop may have run on the loop after the runtime timer fired
			if lt.finished {
				return
			}
			lt.finished = true
			fn()
		})
	})
	return lt
}

// loopTimer's finished flag is only touched on the loop.
type loopTimer struct {
	timer    *time.Timer
	finished bool
}

func (t *loopTimer) Stop() bool {
	if t.finished {
		return false
	}
	t.finished = true
	t.timer.Stop()
	return true
}

var _ Dispatcher = (*Loop)(nil)
