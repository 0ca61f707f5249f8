// Package events fans progress snapshots out to subscribers keyed by operation ID.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/rescale/cloudfm/internal/constants"
	"github.com/rescale/cloudfm/internal/models"
)

// EventBus manages per-operation snapshot subscriptions.
//
// Delivery is conflating: a subscriber whose buffer is full loses its oldest
// queued snapshot rather than the newest one. Snapshots carry full state, so
// only intermediate states are ever skipped and a terminal snapshot is always
// delivered to subscribers that keep reading. Snapshots carrying a failure
// reason are skipped last; a reason is never silently discarded.
type EventBus struct {
	subscribers map[string][]*Subscription
	mu          sync.RWMutex
	bufferSize  int
	closed      bool

	conflatedEvents atomic.Int64 // Snapshots replaced by newer ones in a full buffer
}

// Subscription is one reader of one operation's snapshots.
type Subscription struct {
	operationID string
	ch          chan models.ProgressSnapshot
	bus         *EventBus
	sendMu      sync.Mutex // Serializes conflating sends from concurrent publishers
	closeOnce   sync.Once
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[string][]*Subscription),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to one operation's snapshots.
// On a closed bus the returned subscription's channel is already closed.
func (eb *EventBus) Subscribe(operationID string) *Subscription {
	return eb.subscribe(operationID, nil)
}

// SubscribeFrom is Subscribe with the current state queued first. Callers that
// publish under their own lock should call it under that lock too, so the
// seed can never arrive after a newer snapshot.
func (eb *EventBus) SubscribeFrom(operationID string, initial models.ProgressSnapshot) *Subscription {
	return eb.subscribe(operationID, &initial)
}

// Replay returns a subscription that yields one snapshot and then ends.
// Used for operations that finished before anyone subscribed.
func (eb *EventBus) Replay(operationID string, last models.ProgressSnapshot) *Subscription {
	sub := &Subscription{
		operationID: operationID,
		ch:          make(chan models.ProgressSnapshot, 1),
		bus:         eb,
	}
	sub.ch <- last
	sub.closeChannel()
	return sub
}

func (eb *EventBus) subscribe(operationID string, initial *models.ProgressSnapshot) *Subscription {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	sub := &Subscription{
		operationID: operationID,
		ch:          make(chan models.ProgressSnapshot, eb.bufferSize),
		bus:         eb,
	}
	if initial != nil {
		sub.ch <- *initial
	}
	if eb.closed {
		sub.closeChannel()
		return sub
	}

	eb.subscribers[operationID] = append(eb.subscribers[operationID], sub)
	return sub
}

// Publish delivers a snapshot to every subscriber of its operation without blocking.
func (eb *EventBus) Publish(operationID string, snap models.ProgressSnapshot) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, sub := range eb.subscribers[operationID] {
		if sub.send(snap) {
			eb.conflatedEvents.Add(1)
		}
	}
}

// send runs under the bus read lock, so the channel cannot be closed concurrently.
// Returns true if an older snapshot had to be discarded.
func (s *Subscription) send(snap models.ProgressSnapshot) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case s.ch <- snap:
		return false
	default:
	}

	// Buffer full. Only senders fill the channel and they hold sendMu, so
	// whatever is drained here fits back in.
	queued := make([]models.ProgressSnapshot, 0, cap(s.ch)+1)
	for drained := false; !drained; {
		select {
		case old := <-s.ch:
			queued = append(queued, old)
		default:
			drained = true
		}
	}
	queued = append(queued, snap)

	dropped := false
	if len(queued) > cap(s.ch) {
		queued = conflate(queued)
		dropped = true
	}
	for _, q := range queued {
		s.ch <- q
	}
	return dropped
}

// conflate removes one snapshot from queued, which always ends with the
// newest. The oldest snapshot without a failure reason goes first. When every
// older snapshot carries one, the two oldest are merged so no reason is lost.
func conflate(queued []models.ProgressSnapshot) []models.ProgressSnapshot {
	last := len(queued) - 1
	for i := 0; i < last; i++ {
		if queued[i].FailureReason == "" {
			return append(queued[:i], queued[i+1:]...)
		}
	}
	if last == 0 {
		return queued
	}
	merged := queued[1]
	if merged.FailureReason == "" {
		merged.FailureReason = queued[0].FailureReason
	} else {
		merged.FailureReason = queued[0].FailureReason + "; " + merged.FailureReason
	}
	queued[1] = merged
	return queued[1:]
}

// CloseOperation closes every subscription for one operation. Readers see
// the snapshots already queued, then a closed channel.
func (eb *EventBus) CloseOperation(operationID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, sub := range eb.subscribers[operationID] {
		sub.closeChannel()
	}
	delete(eb.subscribers, operationID)
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, subs := range eb.subscribers {
		for _, sub := range subs {
			sub.closeChannel()
		}
	}
	eb.subscribers = make(map[string][]*Subscription)
}

// SubscriberCount returns the number of live subscriptions for an operation.
func (eb *EventBus) SubscriberCount(operationID string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers[operationID])
}

// ConflatedEventCount returns how many queued snapshots were superseded in full buffers.
// Useful for deciding whether buffer sizes need adjustment.
func (eb *EventBus) ConflatedEventCount() int64 {
	return eb.conflatedEvents.Load()
}

// ResetConflatedEventCount resets the counter and returns its previous value.
func (eb *EventBus) ResetConflatedEventCount() int64 {
	return eb.conflatedEvents.Swap(0)
}

func (eb *EventBus) unsubscribe(sub *Subscription) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[sub.operationID]
	for i, s := range subs {
		if s == sub {
			subs[i] = subs[len(subs)-1]
			subs = subs[:len(subs)-1]
			break
		}
	}
	if len(subs) == 0 {
		delete(eb.subscribers, sub.operationID)
	} else {
		eb.subscribers[sub.operationID] = subs
	}
	sub.closeChannel()
}

// OperationID returns the operation this subscription follows.
func (s *Subscription) OperationID() string {
	return s.operationID
}

// C returns the snapshot channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan models.ProgressSnapshot {
	return s.ch
}

// Close unsubscribes and closes the channel. Idempotent.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

func (s *Subscription) closeChannel() {
	s.closeOnce.Do(func() { close(s.ch) })
}
