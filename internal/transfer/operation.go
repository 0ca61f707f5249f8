// Package transfer tracks long-running transfer operations and publishes their
// progress snapshots. The tracker observes operations; execution belongs to callers.
package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rescale/cloudfm/internal/models"
)

// OperationState represents the current state of a tracked operation.
type OperationState string

const (
	OperationDiscovering OperationState = "discovering" // Enumerating items, totals still growing
	OperationActive      OperationState = "active"      // Items are being transferred
	OperationCancelling  OperationState = "cancelling"  // Cancel requested, waiting for the engine to stop
	OperationCompleted   OperationState = "completed"   // All items succeeded
	OperationFailed      OperationState = "failed"      // Finished with at least one failure
	OperationCancelled   OperationState = "cancelled"   // Stopped by user
)

// IsTerminal returns true for completed, failed and cancelled.
func (s OperationState) IsTerminal() bool {
	return s == OperationCompleted || s == OperationFailed || s == OperationCancelled
}

// Operation is the tracker's record of one operation. Fields are guarded by
// the tracker's lock; callers only ever see copies via Info.
type Operation struct {
	ID    string
	Label string
	State OperationState

	snapshot models.ProgressSnapshot
	active   map[string]int // in-flight item labels (refcounted)
	order    []string       // in-flight labels in start order
	cancel   context.CancelFunc

	CreatedAt   time.Time
	CompletedAt time.Time
}

// OperationInfo is a copy of an operation's state for display.
type OperationInfo struct {
	ID          string
	Label       string
	State       OperationState
	Snapshot    models.ProgressSnapshot
	CreatedAt   time.Time
	CompletedAt time.Time
}

func newOperation(label string, cancel context.CancelFunc) *Operation {
	now := time.Now()
	id := uuid.NewString()
	return &Operation{
		ID:     id,
		Label:  label,
		State:  OperationDiscovering,
		active: make(map[string]int),
		cancel: cancel,
		snapshot: models.ProgressSnapshot{
			OperationID: id,
			Label:       label,
			StartedAt:   now,
			UpdatedAt:   now,
		},
		CreatedAt: now,
	}
}

func (op *Operation) info() OperationInfo {
	return OperationInfo{
		ID:          op.ID,
		Label:       op.Label,
		State:       op.State,
		Snapshot:    op.snapshot,
		CreatedAt:   op.CreatedAt,
		CompletedAt: op.CompletedAt,
	}
}

// beginItem marks an item in flight and makes it the current item label.
func (op *Operation) beginItem(name string) {
	if op.active[name] == 0 {
		op.order = append(op.order, name)
	}
	op.active[name]++
	op.snapshot.CurrentItemLabel = name
}

// endItem removes an item from flight. The current label falls back to the
// most recently started item still running, or empty when idle.
func (op *Operation) endItem(name string) {
	if n := op.active[name]; n > 1 {
		op.active[name] = n - 1
	} else if n == 1 {
		delete(op.active, name)
		for i, label := range op.order {
			if label == name {
				op.order = append(op.order[:i], op.order[i+1:]...)
				break
			}
		}
	}

	if len(op.order) == 0 {
		op.snapshot.CurrentItemLabel = ""
	} else {
		op.snapshot.CurrentItemLabel = op.order[len(op.order)-1]
	}
}
