package eventloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(0)
	go l.Run(context.Background())
	t.Cleanup(func() {
		l.Stop()
		<-l.Done()
	})
	return l
}

func TestLoop_RunsInPostOrder(t *testing.T) {
	l := startLoop(t)

	var order []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() { order = append(order, i) })
	}
	if err := l.Call(context.Background(), func() {}); err != nil {
		t.Fatalf("Call: %v", err)
	}

	if len(order) != 100 {
		t.Fatalf("expected 100 tasks, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("task %d ran out of order (got %d)", i, v)
		}
	}
}

func TestLoop_PostAfterStop(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancel")
	}

	if l.Post(func() {}) {
		t.Error("expected Post to fail on a stopped loop")
	}
	if err := l.Call(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestLoop_AfterFuncRunsOnLoop(t *testing.T) {
	l := startLoop(t)

	fired := make(chan struct{})
	var onLoop atomic.Bool
	l.Call(context.Background(), func() {
		l.AfterFunc(10*time.Millisecond, func() {
			onLoop.Store(true)
			close(fired)
		})
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if !onLoop.Load() {
		t.Error("expected callback to run")
	}
}

func TestLoop_TimerStop(t *testing.T) {
	l := startLoop(t)

	var fired atomic.Int32
	var stopped bool
	l.Call(context.Background(), func() {
		timer := l.AfterFunc(20*time.Millisecond, func() { fired.Add(1) })
		stopped = timer.Stop()
		if timer.Stop() {
			t.Error("second Stop should return false")
		}
	})
	if !stopped {
		t.Error("first Stop should return true")
	}

	time.Sleep(60 * time.Millisecond)
	l.Call(context.Background(), func() {})
	if fired.Load() != 0 {
		t.Error("stopped timer fired")
	}
}

func TestLoop_StopAfterExpiryBeforeRun(t *testing.T) {
	l := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The stop task is queued behind the blocker before the timer is even
	// armed, so the expired callback is queued after it
	release := make(chan struct{})
	var fired atomic.Int32
	var timer Timer
	l.Post(func() {
		timer = l.AfterFunc(time.Millisecond, func() { fired.Add(1) })
		<-release
	})
	l.Post(func() { timer.Stop() })
	go l.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := l.Call(ctx, func() {}); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if fired.Load() != 0 {
		t.Error("timer stopped on the loop must not run even if it already expired")
	}
}
