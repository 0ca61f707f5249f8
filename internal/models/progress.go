package models

import (
	"errors"
	"fmt"
	"time"
)

// ProgressSnapshot is the full state of one long-running operation at a point in time.
// Snapshots are values: each published snapshot replaces the previous one.
type ProgressSnapshot struct {
	OperationID string `json:"operationId"`
	Label       string `json:"label"` // Folder or item being processed

	TotalItems     int `json:"totalItems"`
	CompletedItems int `json:"completedItems"`
	FailedItems    int `json:"failedItems"`

	TotalBytes       int64 `json:"totalBytes"`
	TransferredBytes int64 `json:"transferredBytes"`

	CurrentItemLabel string `json:"currentItemLabel,omitempty"` // Empty when idle or complete
	IsTerminal       bool   `json:"isTerminal"`
	FailureReason    string `json:"failureReason,omitempty"` // Does not imply IsTerminal

	StartedAt time.Time `json:"startedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Snapshot invariant violations
var (
	ErrNegativeCounter   = errors.New("progress counters must be non-negative")
	ErrItemsExceedTotal  = errors.New("completed items exceed total items")
	ErrOperationMismatch = errors.New("snapshots belong to different operations")
	ErrCounterDecreased  = errors.New("progress counter decreased")
	ErrTerminalRetracted = errors.New("terminal state retracted")
)

// Fraction returns completion in [0, 1]. Bytes are preferred; item counts are
// used while the byte total is still unknown.
func (s ProgressSnapshot) Fraction() float64 {
	var f float64
	switch {
	case s.TotalBytes > 0:
		f = float64(s.TransferredBytes) / float64(s.TotalBytes)
	case s.TotalItems > 0:
		f = float64(s.CompletedItems+s.FailedItems) / float64(s.TotalItems)
	case s.IsTerminal:
		f = 1
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// HasFailure reports whether the snapshot carries a failure description.
func (s ProgressSnapshot) HasFailure() bool {
	return s.FailureReason != ""
}

// Validate checks the invariants that hold for a single snapshot.
func (s ProgressSnapshot) Validate() error {
	if s.TotalItems < 0 || s.CompletedItems < 0 || s.FailedItems < 0 ||
		s.TotalBytes < 0 || s.TransferredBytes < 0 {
		return ErrNegativeCounter
	}
	// 0/0 is allowed before discovery completes
	if s.TotalItems > 0 && s.CompletedItems+s.FailedItems > s.TotalItems {
		return fmt.Errorf("%w: %d+%d > %d", ErrItemsExceedTotal, s.CompletedItems, s.FailedItems, s.TotalItems)
	}
	return nil
}

// CheckSuccessor verifies that next may follow s in one operation's event sequence.
func (s ProgressSnapshot) CheckSuccessor(next ProgressSnapshot) error {
	if s.OperationID != next.OperationID {
		return ErrOperationMismatch
	}
	if next.CompletedItems < s.CompletedItems {
		return fmt.Errorf("%w: completedItems %d -> %d", ErrCounterDecreased, s.CompletedItems, next.CompletedItems)
	}
	if next.TransferredBytes < s.TransferredBytes {
		return fmt.Errorf("%w: transferredBytes %d -> %d", ErrCounterDecreased, s.TransferredBytes, next.TransferredBytes)
	}
	if s.IsTerminal && !next.IsTerminal {
		return ErrTerminalRetracted
	}
	return next.Validate()
}
