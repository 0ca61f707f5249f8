package models

import (
	"errors"
	"testing"
)

func TestProgressSnapshot_Fraction(t *testing.T) {
	tests := []struct {
		name string
		snap ProgressSnapshot
		want float64
	}{
		{"nothing known", ProgressSnapshot{}, 0},
		{"bytes preferred", ProgressSnapshot{TotalBytes: 200, TransferredBytes: 50, TotalItems: 2, CompletedItems: 2}, 0.25},
		{"items when bytes unknown", ProgressSnapshot{TotalItems: 4, CompletedItems: 1}, 0.25},
		{"failed items count as done", ProgressSnapshot{TotalItems: 4, CompletedItems: 1, FailedItems: 1}, 0.5},
		{"terminal with no totals", ProgressSnapshot{IsTerminal: true}, 1},
		{"clamped above", ProgressSnapshot{TotalBytes: 100, TransferredBytes: 150}, 1},
		{"clamped below", ProgressSnapshot{TotalBytes: 100, TransferredBytes: -5}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snap.Fraction(); got != tt.want {
				t.Errorf("Fraction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProgressSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name    string
		snap    ProgressSnapshot
		wantErr error
	}{
		{"zero value", ProgressSnapshot{}, nil},
		{"before discovery", ProgressSnapshot{CompletedItems: 3}, nil},
		{"in range", ProgressSnapshot{TotalItems: 3, CompletedItems: 2, FailedItems: 1}, nil},
		{"negative completed", ProgressSnapshot{CompletedItems: -1}, ErrNegativeCounter},
		{"negative failed", ProgressSnapshot{FailedItems: -1}, ErrNegativeCounter},
		{"negative total", ProgressSnapshot{TotalItems: -1}, ErrNegativeCounter},
		{"negative bytes", ProgressSnapshot{TransferredBytes: -1}, ErrNegativeCounter},
		{"negative total bytes", ProgressSnapshot{TotalBytes: -1}, ErrNegativeCounter},
		{"completed exceeds total", ProgressSnapshot{TotalItems: 2, CompletedItems: 3}, ErrItemsExceedTotal},
		{"completed plus failed exceeds total", ProgressSnapshot{TotalItems: 2, CompletedItems: 2, FailedItems: 1}, ErrItemsExceedTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProgressSnapshot_CheckSuccessor(t *testing.T) {
	base := ProgressSnapshot{
		OperationID:      "op-1",
		TotalItems:       4,
		CompletedItems:   2,
		TotalBytes:       400,
		TransferredBytes: 200,
	}
	with := func(fn func(s *ProgressSnapshot)) ProgressSnapshot {
		s := base
		fn(&s)
		return s
	}
	terminal := with(func(s *ProgressSnapshot) { s.IsTerminal = true })

	tests := []struct {
		name    string
		prev    ProgressSnapshot
		next    ProgressSnapshot
		wantErr error
	}{
		{"unchanged", base, base, nil},
		{"advances", base, with(func(s *ProgressSnapshot) { s.CompletedItems = 3; s.TransferredBytes = 300 }), nil},
		{"becomes terminal", base, terminal, nil},
		{"stays terminal", terminal, terminal, nil},
		{"failure reason on non-terminal", base, with(func(s *ProgressSnapshot) { s.FailureReason = "a.txt: denied" }), nil},
		{"different operation", base, with(func(s *ProgressSnapshot) { s.OperationID = "op-2" }), ErrOperationMismatch},
		{"items decrease", base, with(func(s *ProgressSnapshot) { s.CompletedItems = 1 }), ErrCounterDecreased},
		{"bytes decrease", base, with(func(s *ProgressSnapshot) { s.TransferredBytes = 100 }), ErrCounterDecreased},
		{"terminal retracted", terminal, base, ErrTerminalRetracted},
		{"successor invalid", base, with(func(s *ProgressSnapshot) { s.CompletedItems = 5 }), ErrItemsExceedTotal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prev.CheckSuccessor(tt.next)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("CheckSuccessor() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckSuccessor() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProgressSnapshot_HasFailure(t *testing.T) {
	if (ProgressSnapshot{}).HasFailure() {
		t.Error("empty snapshot should not report a failure")
	}
	if !(ProgressSnapshot{FailureReason: "x"}).HasFailure() {
		t.Error("expected HasFailure for a non-empty reason")
	}
}
