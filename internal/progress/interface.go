package progress

import (
	"context"

	"github.com/rescale/cloudfm/internal/models"
)

// Source looks up progress streams for running operations and forwards cancellation.
// transfer.Tracker is the production implementation.
type Source interface {
	// ProgressStream returns the snapshot stream for an operation.
	// ok is false when the operation is unknown or already cleaned up.
	ProgressStream(operationID string) (stream Stream, ok bool)

	// CancelUpload asks the engine running the operation to stop. The engine
	// is expected to follow up with a terminal snapshot.
	CancelUpload(ctx context.Context, operationID string) error
}

// Stream is one subscription to an operation's snapshots, in emission order.
type Stream interface {
	// C is closed when the source ends the stream.
	C() <-chan models.ProgressSnapshot
	// Close ends the subscription. Idempotent.
	Close()
}

// Sinks are the side effects an Observer drives. Every sink runs on the
// observer's event loop; nil sinks are skipped.
type Sinks struct {
	// Redraw asks the view to re-render from Observer.Snapshot.
	Redraw func()
	// Complete fires once per attachment, on the first terminal snapshot.
	Complete func()
	// Failure fires for every snapshot that carries a failure reason.
	Failure func(reason string)
	// Dismissed fires when the automatic teardown after completion detaches the observer.
	Dismissed func()
}

// View renders snapshots. The terminal views in this package implement it;
// an Observer's redraw sink renders Observer.Snapshot into one.
type View interface {
	// Render draws the latest state of the operation.
	Render(snap models.ProgressSnapshot)
	// Notice prints a line without corrupting the rendered progress.
	Notice(msg string)
	// Close releases the terminal. The view must not be used afterwards.
	Close()
}
