// Package eventlooptest provides a manually driven dispatcher with a virtual
// clock for testing loop-confined components deterministically.
package eventlooptest

import (
	"sort"
	"sync"
	"time"

	"github.com/rescale/cloudfm/internal/eventloop"
)

// Manual is an eventloop.Dispatcher driven by the test goroutine.
// Posted tasks run only when the test calls RunPending, RunNext or Advance;
// timers fire only when Advance moves the virtual clock past their deadline.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	queue  []func()
	timers []*manualTimer
	seq    int
	signal chan struct{}
}

// New returns a Manual dispatcher with its clock at zero.
func New() *Manual {
	return &Manual{signal: make(chan struct{}, 1)}
}

// Post queues fn. Safe to call from any goroutine.
func (m *Manual) Post(fn func()) bool {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// AfterFunc arms a virtual-clock timer.
func (m *Manual) AfterFunc(d time.Duration, fn func()) eventloop.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, deadline: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Now returns the virtual time elapsed since New.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// ArmedTimers returns how many timers are waiting to fire.
func (m *Manual) ArmedTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.done {
			n++
		}
	}
	return n
}

// RunPending runs queued tasks, including ones they post, until the queue is empty.
func (m *Manual) RunPending() int {
	n := 0
	for m.runOne() {
		n++
	}
	return n
}

// RunNext waits up to timeout for a task posted from another goroutine and runs it.
func (m *Manual) RunNext(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if m.runOne() {
			return true
		}
		select {
		case <-m.signal:
		case <-deadline:
			return false
		}
	}
}

// Advance moves the virtual clock forward by d, firing due timers in deadline
// order and draining the task queue after each one.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	m.RunPending()
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		t.fn()
		m.RunPending()
	}

	m.mu.Lock()
	m.now = target
	m.mu.Unlock()
}

func (m *Manual) nextDue(target time.Duration) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.timers[:0]
	for _, t := range m.timers {
		if !t.done {
			active = append(active, t)
		}
	}
	m.timers = active
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].deadline == m.timers[j].deadline {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].deadline < m.timers[j].deadline
	})

	if len(m.timers) == 0 || m.timers[0].deadline > target {
		return nil
	}
	t := m.timers[0]
	t.done = true
	m.now = t.deadline
	return t
}

func (m *Manual) runOne() bool {
	m.mu.Lock()
	if len(m.queue) == 0 {
		m.mu.Unlock()
		return false
	}
	fn := m.queue[0]
	m.queue = m.queue[1:]
	m.mu.Unlock()

	fn()
	return true
}

type manualTimer struct {
	m        *Manual
	deadline time.Duration
	seq      int
	fn       func()
	done     bool
}

// Stop disarms the timer. Safe to call from any goroutine.
func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

var _ eventloop.Dispatcher = (*Manual)(nil)
