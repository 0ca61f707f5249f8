package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rescale/cloudfm/internal/events"
	"github.com/rescale/cloudfm/internal/logging"
	"github.com/rescale/cloudfm/internal/progress"
)

// Tracker errors
var (
	ErrOperationNotFound = errors.New("operation not found")
	ErrAlreadyFinished   = errors.New("operation already finished")
)

// ReasonCancelled is the failure reason carried by a cancelled operation's terminal snapshot.
const ReasonCancelled = "cancelled"

// TrackerStats holds operation counts by state.
type TrackerStats struct {
	Discovering int
	Active      int
	Cancelling  int
	Completed   int
	Failed      int
	Cancelled   int
}

// Total returns the number of tracked operations.
func (s TrackerStats) Total() int {
	return s.Discovering + s.Active + s.Cancelling + s.Completed + s.Failed + s.Cancelled
}

// Tracker is a passive operation tracker that publishes progress snapshots.
// It does NOT run transfers. The engine that does reports through it:
//   - Start registers the operation and its cancel function
//   - Discover, BeginItem, AddBytes, CompleteItem and FailItem report progress
//   - Finish publishes the terminal snapshot and ends every stream
//
// Every mutation publishes while holding the tracker lock, so subscribers see
// snapshots in the order the mutations happened.
type Tracker struct {
	ops  []*Operation          // All operations in creation order
	byID map[string]*Operation // Index by ID for quick lookup
	mu   sync.Mutex

	bus    *events.EventBus
	logger *logging.Logger
}

var _ progress.Source = (*Tracker)(nil)

// NewTracker creates a tracker publishing on bus. A nil bus gets a private one.
func NewTracker(bus *events.EventBus, logger *logging.Logger) *Tracker {
	if bus == nil {
		bus = events.NewEventBus(0)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tracker{
		byID:   make(map[string]*Operation),
		bus:    bus,
		logger: logger,
	}
}

// Start registers a new operation and returns its ID. cancel is called by
// CancelUpload and may be nil for operations that cannot be stopped.
func (t *Tracker) Start(label string, cancel context.CancelFunc) string {
	op := newOperation(label, cancel)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops = append(t.ops, op)
	t.byID[op.ID] = op
	t.publishLocked(op)

	t.logger.Debug().Str("operation", op.ID).Str("label", label).Msg("Operation started")
	return op.ID
}

// Discover grows an operation's totals as the engine enumerates work.
func (t *Tracker) Discover(id string, items int, bytes int64) {
	t.update(id, func(op *Operation) {
		op.snapshot.TotalItems += items
		op.snapshot.TotalBytes += bytes
	})
}

// BeginItem marks an item as in flight. The first item moves a discovering
// operation to active.
func (t *Tracker) BeginItem(id, name string) {
	t.update(id, func(op *Operation) {
		if op.State == OperationDiscovering {
			op.State = OperationActive
		}
		op.beginItem(name)
	})
}

// AddBytes records transferred bytes.
func (t *Tracker) AddBytes(id string, n int64) {
	if n == 0 {
		return
	}
	t.update(id, func(op *Operation) {
		op.snapshot.TransferredBytes += n
	})
}

// CompleteItem records a successful item.
func (t *Tracker) CompleteItem(id, name string) {
	t.update(id, func(op *Operation) {
		op.snapshot.CompletedItems++
		op.endItem(name)
	})
}

// FailItem records a failed item. The published snapshot carries the failure
// reason; the operation keeps going.
func (t *Tracker) FailItem(id, name, reason string) {
	t.updateWithReason(id, fmt.Sprintf("%s: %s", name, reason), func(op *Operation) {
		op.snapshot.FailedItems++
		op.endItem(name)
	})
}

// ReportFailure publishes a non-terminal failure that is not tied to one item,
// such as a discovery error on a subdirectory.
func (t *Tracker) ReportFailure(id, reason string) {
	t.updateWithReason(id, reason, func(*Operation) {})
}

// Finish publishes the terminal snapshot and closes every stream for the
// operation. A nil error completes the operation unless items failed;
// context.Canceled marks it cancelled. Later calls are ignored.
func (t *Tracker) Finish(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.byID[id]
	if !ok || op.State.IsTerminal() {
		return
	}

	failed := op.snapshot.FailedItems
	switch {
	case errors.Is(err, context.Canceled):
		op.State = OperationCancelled
		op.snapshot.FailureReason = ReasonCancelled
	case err != nil:
		op.State = OperationFailed
		op.snapshot.FailureReason = err.Error()
	case failed > 0:
		op.State = OperationFailed
		op.snapshot.FailureReason = fmt.Sprintf("%d of %d items failed", failed, op.snapshot.TotalItems)
	default:
		op.State = OperationCompleted
		op.snapshot.FailureReason = ""
	}

	now := time.Now()
	op.CompletedAt = now
	op.cancel = nil
	op.active = make(map[string]int)
	op.order = nil
	op.snapshot.CurrentItemLabel = ""
	op.snapshot.IsTerminal = true
	op.snapshot.UpdatedAt = now

	t.bus.Publish(op.ID, op.snapshot)
	t.bus.CloseOperation(op.ID)

	t.logger.Debug().Str("operation", op.ID).Str("state", string(op.State)).Msg("Operation finished")
}

// ProgressStream returns a stream seeded with the operation's current snapshot.
// A finished operation's stream replays the terminal snapshot and ends.
func (t *Tracker) ProgressStream(id string) (progress.Stream, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	if op.State.IsTerminal() {
		return t.bus.Replay(id, op.snapshot), true
	}
	return t.bus.SubscribeFrom(id, op.snapshot), true
}

// CancelUpload calls the operation's cancel function. The engine is expected
// to stop and call Finish with context.Canceled.
func (t *Tracker) CancelUpload(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	op, ok := t.byID[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", id, ErrOperationNotFound)
	}
	if op.State.IsTerminal() {
		t.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", id, ErrAlreadyFinished)
	}
	cancel := op.cancel
	if op.State != OperationCancelling {
		op.State = OperationCancelling
		op.snapshot.UpdatedAt = time.Now()
		t.publishLocked(op)
	}
	t.mu.Unlock()

	// Outside the lock: cancel may synchronously call back into the tracker
	if cancel != nil {
		cancel()
	}
	t.logger.Info().Str("operation", id).Msg("Cancellation requested")
	return nil
}

// Get returns a copy of an operation's state.
func (t *Tracker) Get(id string) (OperationInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.byID[id]
	if !ok {
		return OperationInfo{}, false
	}
	return op.info(), true
}

// List returns copies of all operations in creation order.
func (t *Tracker) List() []OperationInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	result := make([]OperationInfo, len(t.ops))
	for i, op := range t.ops {
		result[i] = op.info()
	}
	return result
}

// Forget drops a finished operation. Running operations cannot be forgotten.
func (t *Tracker) Forget(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.byID[id]
	if !ok {
		return ErrOperationNotFound
	}
	if !op.State.IsTerminal() {
		return fmt.Errorf("forget %s: operation is %s", id, op.State)
	}
	t.removeLocked(id)
	return nil
}

// ClearFinished removes all completed, failed and cancelled operations.
func (t *Tracker) ClearFinished() {
	t.mu.Lock()
	defer t.mu.Unlock()

	filtered := make([]*Operation, 0, len(t.ops))
	for _, op := range t.ops {
		if op.State.IsTerminal() {
			delete(t.byID, op.ID)
		} else {
			filtered = append(filtered, op)
		}
	}
	t.ops = filtered
}

// Stats returns operation counts by state.
func (t *Tracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := TrackerStats{}
	for _, op := range t.ops {
		switch op.State {
		case OperationDiscovering:
			stats.Discovering++
		case OperationActive:
			stats.Active++
		case OperationCancelling:
			stats.Cancelling++
		case OperationCompleted:
			stats.Completed++
		case OperationFailed:
			stats.Failed++
		case OperationCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

func (t *Tracker) update(id string, fn func(op *Operation)) {
	t.updateWithReason(id, "", fn)
}

// updateWithReason applies fn and publishes. reason is attached to the
// published snapshot only; it does not stick to later snapshots.
func (t *Tracker) updateWithReason(id, reason string, fn func(op *Operation)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	op, ok := t.byID[id]
	if !ok || op.State.IsTerminal() {
		return
	}
	fn(op)
	op.snapshot.UpdatedAt = time.Now()

	op.snapshot.FailureReason = reason
	t.publishLocked(op)
	op.snapshot.FailureReason = ""
}

func (t *Tracker) publishLocked(op *Operation) {
	if err := op.snapshot.Validate(); err != nil {
		t.logger.Warn().Err(err).Str("operation", op.ID).Msg("Publishing inconsistent snapshot")
	}
	t.bus.Publish(op.ID, op.snapshot)
}

func (t *Tracker) removeLocked(id string) {
	delete(t.byID, id)
	for i, op := range t.ops {
		if op.ID == id {
			t.ops = append(t.ops[:i], t.ops[i+1:]...)
			return
		}
	}
}
