package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rescale/cloudfm/internal/events"
	"github.com/rescale/cloudfm/internal/models"
	"github.com/rescale/cloudfm/internal/progress"
)

// drain reads every snapshot until the stream closes.
func drain(t *testing.T, stream progress.Stream) []models.ProgressSnapshot {
	t.Helper()
	var got []models.ProgressSnapshot
	for {
		select {
		case snap, ok := <-stream.C():
			if !ok {
				return got
			}
			got = append(got, snap)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for stream to close after %d snapshots", len(got))
		}
	}
}

func TestTracker_StartAndGet(t *testing.T) {
	tracker := NewTracker(nil, nil)
	id := tracker.Start("photos", nil)

	if id == "" {
		t.Fatal("Operation ID should not be empty")
	}
	info, ok := tracker.Get(id)
	if !ok {
		t.Fatal("expected operation to be tracked")
	}
	if info.State != OperationDiscovering {
		t.Errorf("Expected discovering, got %v", info.State)
	}
	if info.Snapshot.OperationID != id || info.Snapshot.Label != "photos" {
		t.Errorf("unexpected initial snapshot: %+v", info.Snapshot)
	}
	if info.Snapshot.StartedAt.IsZero() {
		t.Error("StartedAt should be set")
	}
}

func TestTracker_StreamOrderAndTerminal(t *testing.T) {
	tracker := NewTracker(events.NewEventBus(64), nil)
	id := tracker.Start("docs", nil)

	stream, ok := tracker.ProgressStream(id)
	if !ok {
		t.Fatal("expected a stream for a running operation")
	}

	tracker.Discover(id, 2, 300)
	tracker.BeginItem(id, "a.txt")
	tracker.AddBytes(id, 100)
	tracker.CompleteItem(id, "a.txt")
	tracker.BeginItem(id, "b.txt")
	tracker.AddBytes(id, 200)
	tracker.CompleteItem(id, "b.txt")
	tracker.Finish(id, nil)

	got := drain(t, stream)
	if len(got) != 9 {
		t.Fatalf("expected seed + 8 updates, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if err := got[i-1].CheckSuccessor(got[i]); err != nil {
			t.Errorf("snapshot %d out of order: %v", i, err)
		}
	}

	last := got[len(got)-1]
	if !last.IsTerminal {
		t.Error("expected final snapshot to be terminal")
	}
	if last.CompletedItems != 2 || last.TransferredBytes != 300 {
		t.Errorf("unexpected final counters: %+v", last)
	}
	if last.FailureReason != "" {
		t.Errorf("expected no failure reason, got %q", last.FailureReason)
	}
	if got[2].CurrentItemLabel != "a.txt" {
		t.Errorf("expected current item a.txt, got %q", got[2].CurrentItemLabel)
	}

	info, _ := tracker.Get(id)
	if info.State != OperationCompleted {
		t.Errorf("Expected completed, got %v", info.State)
	}
}

func TestTracker_CurrentItemFallsBack(t *testing.T) {
	tracker := NewTracker(nil, nil)
	id := tracker.Start("docs", nil)
	tracker.Discover(id, 2, 0)

	tracker.BeginItem(id, "a")
	tracker.BeginItem(id, "b")
	tracker.CompleteItem(id, "b")

	info, _ := tracker.Get(id)
	if info.Snapshot.CurrentItemLabel != "a" {
		t.Errorf("expected fallback to a, got %q", info.Snapshot.CurrentItemLabel)
	}

	tracker.CompleteItem(id, "a")
	info, _ = tracker.Get(id)
	if info.Snapshot.CurrentItemLabel != "" {
		t.Errorf("expected empty label when idle, got %q", info.Snapshot.CurrentItemLabel)
	}
}

func TestTracker_FailItemIsNotSticky(t *testing.T) {
	tracker := NewTracker(nil, nil)
	id := tracker.Start("docs", nil)
	stream, _ := tracker.ProgressStream(id)

	tracker.Discover(id, 2, 0)
	tracker.BeginItem(id, "a.txt")
	tracker.FailItem(id, "a.txt", "network error")
	tracker.BeginItem(id, "b.txt")
	tracker.CompleteItem(id, "b.txt")
	tracker.Finish(id, nil)

	got := drain(t, stream)
	var reasons []string
	for _, snap := range got[:len(got)-1] {
		if snap.FailureReason != "" {
			reasons = append(reasons, snap.FailureReason)
		}
	}
	if len(reasons) != 1 || reasons[0] != "a.txt: network error" {
		t.Errorf("expected exactly one non-terminal failure, got %v", reasons)
	}

	last := got[len(got)-1]
	if !last.IsTerminal || last.FailedItems != 1 {
		t.Errorf("unexpected terminal snapshot: %+v", last)
	}
	if last.FailureReason != "1 of 2 items failed" {
		t.Errorf("unexpected terminal reason %q", last.FailureReason)
	}

	info, _ := tracker.Get(id)
	if info.State != OperationFailed {
		t.Errorf("Expected failed, got %v", info.State)
	}
}

func TestTracker_FailureSurvivesFullStreamBuffer(t *testing.T) {
	tracker := NewTracker(events.NewEventBus(4), nil)
	id := tracker.Start("docs", nil)
	stream, _ := tracker.ProgressStream(id)

	tracker.Discover(id, 2, 1000)
	tracker.BeginItem(id, "a.txt")
	tracker.FailItem(id, "a.txt", "network error")
	tracker.BeginItem(id, "b.txt")
	for i := 0; i < 10; i++ {
		tracker.AddBytes(id, 10)
	}
	tracker.CompleteItem(id, "b.txt")
	tracker.Finish(id, nil)

	got := drain(t, stream)
	failures := 0
	for _, snap := range got[:len(got)-1] {
		if snap.FailureReason != "" {
			failures++
			if snap.FailureReason != "a.txt: network error" {
				t.Errorf("unexpected failure reason %q", snap.FailureReason)
			}
		}
	}
	if failures != 1 {
		t.Errorf("expected 1 non-terminal failure event, got %d", failures)
	}
	for i := 1; i < len(got); i++ {
		if err := got[i-1].CheckSuccessor(got[i]); err != nil {
			t.Errorf("snapshot %d: %v", i, err)
		}
	}
	if last := got[len(got)-1]; !last.IsTerminal || last.FailureReason != "1 of 2 items failed" {
		t.Errorf("unexpected terminal snapshot: %+v", last)
	}
}

func TestTracker_FinishStates(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantState  OperationState
		wantReason string
	}{
		{"success", nil, OperationCompleted, ""},
		{"cancelled", context.Canceled, OperationCancelled, ReasonCancelled},
		{"wrapped cancel", errors.Join(errors.New("walk"), context.Canceled), OperationCancelled, ReasonCancelled},
		{"error", errors.New("bucket not found"), OperationFailed, "bucket not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(nil, nil)
			id := tracker.Start("x", nil)
			tracker.Finish(id, tt.err)

			info, _ := tracker.Get(id)
			if info.State != tt.wantState {
				t.Errorf("Expected %v, got %v", tt.wantState, info.State)
			}
			if info.Snapshot.FailureReason != tt.wantReason {
				t.Errorf("Expected reason %q, got %q", tt.wantReason, info.Snapshot.FailureReason)
			}
			if info.CompletedAt.IsZero() {
				t.Error("CompletedAt should be set")
			}
		})
	}
}

func TestTracker_UpdatesAfterFinishIgnored(t *testing.T) {
	tracker := NewTracker(nil, nil)
	id := tracker.Start("x", nil)
	tracker.Discover(id, 1, 10)
	tracker.Finish(id, nil)

	tracker.AddBytes(id, 10)
	tracker.Finish(id, errors.New("late"))

	info, _ := tracker.Get(id)
	if info.Snapshot.TransferredBytes != 0 {
		t.Errorf("expected bytes unchanged after finish, got %d", info.Snapshot.TransferredBytes)
	}
	if info.State != OperationCompleted {
		t.Errorf("expected first Finish to win, got %v", info.State)
	}
}

func TestTracker_StreamForFinishedOperation(t *testing.T) {
	tracker := NewTracker(nil, nil)
	id := tracker.Start("x", nil)
	tracker.Finish(id, nil)

	stream, ok := tracker.ProgressStream(id)
	if !ok {
		t.Fatal("expected a replay stream for a finished operation")
	}
	got := drain(t, stream)
	if len(got) != 1 || !got[0].IsTerminal {
		t.Errorf("expected a single terminal snapshot, got %+v", got)
	}
}

func TestTracker_UnknownOperation(t *testing.T) {
	tracker := NewTracker(nil, nil)

	if _, ok := tracker.ProgressStream("missing"); ok {
		t.Error("expected no stream for unknown operation")
	}
	err := tracker.CancelUpload(context.Background(), "missing")
	if !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("expected ErrOperationNotFound, got %v", err)
	}
}

func TestTracker_CancelUpload(t *testing.T) {
	tracker := NewTracker(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id := tracker.Start("x", cancel)

	if err := tracker.CancelUpload(context.Background(), id); err != nil {
		t.Fatalf("CancelUpload: %v", err)
	}
	if ctx.Err() == nil {
		t.Error("expected operation context to be cancelled")
	}
	info, _ := tracker.Get(id)
	if info.State != OperationCancelling {
		t.Errorf("Expected cancelling, got %v", info.State)
	}

	// The engine reports back
	tracker.Finish(id, ctx.Err())
	info, _ = tracker.Get(id)
	if info.State != OperationCancelled {
		t.Errorf("Expected cancelled, got %v", info.State)
	}

	err := tracker.CancelUpload(context.Background(), id)
	if !errors.Is(err, ErrAlreadyFinished) {
		t.Errorf("expected ErrAlreadyFinished, got %v", err)
	}
}

func TestTracker_CancelUploadContextDone(t *testing.T) {
	tracker := NewTracker(nil, nil)
	id := tracker.Start("x", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tracker.CancelUpload(ctx, id); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	info, _ := tracker.Get(id)
	if info.State != OperationDiscovering {
		t.Errorf("state should be unchanged, got %v", info.State)
	}
}

func TestTracker_ForgetAndClear(t *testing.T) {
	tracker := NewTracker(nil, nil)
	running := tracker.Start("running", nil)
	done := tracker.Start("done", nil)
	other := tracker.Start("other", nil)
	tracker.Finish(done, nil)
	tracker.Finish(other, errors.New("boom"))

	if err := tracker.Forget(running); err == nil {
		t.Error("expected error forgetting a running operation")
	}
	if err := tracker.Forget(done); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, ok := tracker.ProgressStream(done); ok {
		t.Error("expected no stream for a forgotten operation")
	}
	if err := tracker.Forget(done); !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("expected ErrOperationNotFound, got %v", err)
	}

	stats := tracker.Stats()
	if stats.Discovering != 1 || stats.Failed != 1 || stats.Total() != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}

	tracker.ClearFinished()
	list := tracker.List()
	if len(list) != 1 || list[0].ID != running {
		t.Errorf("expected only the running operation to remain, got %+v", list)
	}
}
