package events

import (
	"sync"
	"testing"
	"time"

	"github.com/rescale/cloudfm/internal/models"
)

func snap(id string, completed int, terminal bool) models.ProgressSnapshot {
	return models.ProgressSnapshot{
		OperationID:    id,
		TotalItems:     10,
		CompletedItems: completed,
		IsTerminal:     terminal,
	}
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	sub := bus.Subscribe("op-1")
	bus.Publish("op-1", snap("op-1", 3, false))

	select {
	case received := <-sub.C():
		if received.OperationID != "op-1" {
			t.Errorf("Expected operation 'op-1', got '%s'", received.OperationID)
		}
		if received.CompletedItems != 3 {
			t.Errorf("Expected completedItems 3, got %d", received.CompletedItems)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for snapshot")
	}
}

func TestEventBus_OperationsAreIsolated(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	subA := bus.Subscribe("a")
	subB := bus.Subscribe("b")

	bus.Publish("a", snap("a", 1, false))

	select {
	case <-subA.C():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("subscriber of 'a' did not receive its snapshot")
	}

	select {
	case s := <-subB.C():
		t.Errorf("subscriber of 'b' received snapshot for %q", s.OperationID)
	default:
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch1 := bus.Subscribe("op")
	ch2 := bus.Subscribe("op")
	bus.Publish("op", snap("op", 1, false))

	for i, sub := range []*Subscription{ch1, ch2} {
		select {
		case <-sub.C():
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d did not receive snapshot", i+1)
		}
	}
}

func TestEventBus_FullBufferKeepsNewest(t *testing.T) {
	bus := NewEventBus(2)
	defer bus.Close()

	sub := bus.Subscribe("op")
	for i := 1; i <= 5; i++ {
		bus.Publish("op", snap("op", i, i == 5))
	}

	var got []models.ProgressSnapshot
	for len(got) < 2 {
		select {
		case s := <-sub.C():
			got = append(got, s)
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("expected 2 buffered snapshots, got %d", len(got))
		}
	}

	if got[0].CompletedItems != 4 || got[1].CompletedItems != 5 {
		t.Errorf("expected the two newest snapshots (4, 5), got (%d, %d)", got[0].CompletedItems, got[1].CompletedItems)
	}
	if !got[1].IsTerminal {
		t.Error("expected terminal snapshot to survive a full buffer")
	}
	if bus.ConflatedEventCount() != 3 {
		t.Errorf("expected 3 conflated snapshots, got %d", bus.ConflatedEventCount())
	}
	if prev := bus.ResetConflatedEventCount(); prev != 3 || bus.ConflatedEventCount() != 0 {
		t.Errorf("expected reset to return 3 and zero the counter, got %d / %d", prev, bus.ConflatedEventCount())
	}
}

// drainQueued reads whatever is buffered without waiting for more.
func drainQueued(sub *Subscription) []models.ProgressSnapshot {
	var got []models.ProgressSnapshot
	for {
		select {
		case s := <-sub.C():
			got = append(got, s)
		default:
			return got
		}
	}
}

func TestEventBus_FullBufferKeepsFailureReasons(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	sub := bus.Subscribe("op")
	failed := snap("op", 1, false)
	failed.FailureReason = "a.txt: network error"
	bus.Publish("op", failed)
	for i := 2; i <= 11; i++ {
		bus.Publish("op", snap("op", i, i == 11))
	}

	got := drainQueued(sub)
	if len(got) != 4 {
		t.Fatalf("expected 4 buffered snapshots, got %d", len(got))
	}
	var reasons []string
	for _, s := range got {
		if s.FailureReason != "" {
			reasons = append(reasons, s.FailureReason)
		}
	}
	if len(reasons) != 1 || reasons[0] != "a.txt: network error" {
		t.Errorf("expected the failure to survive conflation, got %v", reasons)
	}
	if last := got[len(got)-1]; !last.IsTerminal || last.CompletedItems != 11 {
		t.Errorf("expected newest terminal snapshot last, got %+v", last)
	}
	for i := 1; i < len(got); i++ {
		if got[i].CompletedItems < got[i-1].CompletedItems {
			t.Errorf("snapshots out of order: %d after %d", got[i].CompletedItems, got[i-1].CompletedItems)
		}
	}
}

func TestEventBus_FullBufferOfFailuresMergesReasons(t *testing.T) {
	bus := NewEventBus(2)
	defer bus.Close()

	sub := bus.Subscribe("op")
	for i, reason := range []string{"a failed", "b failed", "c failed"} {
		s := snap("op", i+1, false)
		s.FailureReason = reason
		bus.Publish("op", s)
	}

	got := drainQueued(sub)
	if len(got) != 2 {
		t.Fatalf("expected 2 buffered snapshots, got %d", len(got))
	}
	if got[0].FailureReason != "a failed; b failed" || got[0].CompletedItems != 2 {
		t.Errorf("expected the two oldest failures merged, got %+v", got[0])
	}
	if got[1].FailureReason != "c failed" {
		t.Errorf("expected newest failure intact, got %q", got[1].FailureReason)
	}
	if bus.ConflatedEventCount() != 1 {
		t.Errorf("expected 1 conflated snapshot, got %d", bus.ConflatedEventCount())
	}
}

func TestEventBus_CloseOperation(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	sub := bus.Subscribe("op")
	other := bus.Subscribe("other")
	bus.Publish("op", snap("op", 10, true))
	bus.CloseOperation("op")

	// Queued snapshot is still readable, then the channel is closed
	if s, ok := <-sub.C(); !ok || !s.IsTerminal {
		t.Fatalf("expected queued terminal snapshot before close, got ok=%v", ok)
	}
	if _, ok := <-sub.C(); ok {
		t.Error("expected channel closed after CloseOperation")
	}
	if bus.SubscriberCount("op") != 0 {
		t.Errorf("expected no subscribers left, got %d", bus.SubscriberCount("op"))
	}
	if bus.SubscriberCount("other") != 1 {
		t.Error("expected other operation's subscription untouched")
	}

	// Closing a subscription after its operation was closed must not panic
	sub.Close()
	other.Close()
}

func TestSubscription_Close(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	sub := bus.Subscribe("op")
	sub.Close()
	sub.Close()

	if bus.SubscriberCount("op") != 0 {
		t.Errorf("expected unsubscribe to remove subscription, got %d", bus.SubscriberCount("op"))
	}
	if _, ok := <-sub.C(); ok {
		t.Error("expected closed channel after Close")
	}

	// Publishing after unsubscribe must not panic
	bus.Publish("op", snap("op", 1, false))
}

func TestEventBus_SubscribeAfterClose(t *testing.T) {
	bus := NewEventBus(10)
	bus.Close()
	bus.Close()

	sub := bus.Subscribe("op")
	if _, ok := <-sub.C(); ok {
		t.Error("expected closed channel from closed bus")
	}
	sub.Close()
}

func TestEventBus_ConcurrentPublishers(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	sub := bus.Subscribe("op")

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				bus.Publish("op", snap("op", i, false))
			}
		}()
	}
	wg.Wait()

	// Buffer never exceeds its capacity and never blocks publishers
	if n := len(sub.C()); n > 4 {
		t.Errorf("expected at most 4 queued snapshots, got %d", n)
	}
}

func TestEventBus_SubscribeFromSeedsFirst(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	sub := bus.SubscribeFrom("op", snap("op", 2, false))
	bus.Publish("op", snap("op", 3, false))

	first := <-sub.C()
	second := <-sub.C()
	if first.CompletedItems != 2 || second.CompletedItems != 3 {
		t.Errorf("expected seed then publish (2, 3), got (%d, %d)", first.CompletedItems, second.CompletedItems)
	}
}

func TestEventBus_Replay(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	sub := bus.Replay("op", snap("op", 10, true))

	got, ok := <-sub.C()
	if !ok || !got.IsTerminal {
		t.Fatalf("expected replayed terminal snapshot, got %+v (ok=%v)", got, ok)
	}
	if _, ok := <-sub.C(); ok {
		t.Error("expected replay channel to be closed after the snapshot")
	}
	if bus.SubscriberCount("op") != 0 {
		t.Error("replay subscriptions must not register with the bus")
	}
	sub.Close()
}
