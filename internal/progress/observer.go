// Package progress bridges an operation's snapshot stream into view state and
// paced redraws, and renders that state in the terminal.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rescale/cloudfm/internal/coalesce"
	"github.com/rescale/cloudfm/internal/constants"
	"github.com/rescale/cloudfm/internal/eventloop"
	"github.com/rescale/cloudfm/internal/logging"
	"github.com/rescale/cloudfm/internal/models"
)

// State is the attachment lifecycle of an Observer.
type State int

const (
	StateUnattached State = iota
	StateAttachedNoData
	StateAttachedActive
	StateAttachedTerminal
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateUnattached:
		return "unattached"
	case StateAttachedNoData:
		return "attached(no data)"
	case StateAttachedActive:
		return "attached(active)"
	case StateAttachedTerminal:
		return "attached(terminal)"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Observer misuse errors
var (
	ErrAlreadyAttached = errors.New("observer already attached")
	ErrDetached        = errors.New("observer detached")
	ErrNotAttached     = errors.New("observer not attached to an operation")
)

// Options tune an Observer. Zero values select the defaults.
type Options struct {
	CoalesceWindow time.Duration // Default constants.CoalesceWindow
	LingerDelay    time.Duration // Delay between completion and automatic teardown; default constants.TerminalLingerDelay
	Logger         *logging.Logger
}

// Observer follows one operation's progress stream on an event loop.
//
// Attach, Detach, State and Snapshot must be called on the loop, and every
// sink runs there. CancelOperation and OperationID may be called from any
// goroutine. Snapshots are pumped from the stream by a helper goroutine that
// only posts to the loop, so ordering is exactly the source's emission order.
type Observer struct {
	loop   eventloop.Dispatcher
	source Source
	sinks  Sinks
	opts   Options
	log    *logging.Logger

	state        State
	snapshot     models.ProgressSnapshot
	hasSnapshot  bool
	terminalSeen bool
	stream       Stream
	stopPump     chan struct{}
	linger       eventloop.Timer
	coalescer    *coalesce.Coalescer

	idMu        sync.Mutex
	operationID string
}

// NewObserver creates an unattached observer. Each observer owns its own
// coalescer, so bursts on one operation never delay redraws of another.
func NewObserver(loop eventloop.Dispatcher, source Source, sinks Sinks, opts Options) *Observer {
	if opts.CoalesceWindow <= 0 {
		opts.CoalesceWindow = constants.CoalesceWindow
	}
	if opts.LingerDelay <= 0 {
		opts.LingerDelay = constants.TerminalLingerDelay
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}

	o := &Observer{
		loop:   loop,
		source: source,
		sinks:  sinks,
		opts:   opts,
		log:    log,
	}
	o.coalescer = coalesce.New(loop, opts.CoalesceWindow, o.redraw)
	return o
}

// Attach subscribes to an operation's progress. An unknown operation is not
// an error: the observer stays attached with no data for the rest of its life.
func (o *Observer) Attach(operationID string) error {
	switch o.state {
	case StateDetached:
		return ErrDetached
	case StateUnattached:
	default:
		return ErrAlreadyAttached
	}

	o.idMu.Lock()
	o.operationID = operationID
	o.idMu.Unlock()
	o.state = StateAttachedNoData

	stream, ok := o.source.ProgressStream(operationID)
	if !ok || stream == nil {
		o.log.Debug().Str("operation", operationID).Msg("No progress stream for operation")
		return nil
	}

	o.stream = stream
	o.stopPump = make(chan struct{})
	go o.pump(stream, o.stopPump)

	o.log.Debug().Str("operation", operationID).Msg("Observer attached")
	return nil
}

// pump forwards snapshots to the loop until the stream ends or the observer detaches.
func (o *Observer) pump(stream Stream, stop <-chan struct{}) {
	for {
		select {
		case snap, ok := <-stream.C():
			if !ok {
				return
			}
			if !o.loop.Post(func() { o.deliver(stream, snap) }) {
				return
			}
		case <-stop:
			return
		}
	}
}

// deliver applies one snapshot. Runs on the loop.
func (o *Observer) deliver(from Stream, snap models.ProgressSnapshot) {
	// Drop snapshots posted before a detach
	if o.state == StateDetached || from != o.stream {
		return
	}

	if o.hasSnapshot {
		if err := o.snapshot.CheckSuccessor(snap); err != nil {
			o.log.Warn().Err(err).Str("operation", snap.OperationID).Msg("Out-of-order progress snapshot")
		}
	}
	o.snapshot = snap
	o.hasSnapshot = true
	if o.state == StateAttachedNoData {
		o.state = StateAttachedActive
	}

	o.coalescer.Notify()

	if snap.IsTerminal && !o.terminalSeen {
		o.terminalSeen = true
		o.state = StateAttachedTerminal
		o.log.Debug().Str("operation", snap.OperationID).Msg("Operation reached terminal state")

		if o.sinks.Complete != nil {
			o.sinks.Complete()
		}
		// The completion sink may have detached us
		if o.state == StateDetached {
			return
		}
		o.linger = o.loop.AfterFunc(o.opts.LingerDelay, o.teardown)
	}

	if snap.FailureReason != "" && o.sinks.Failure != nil {
		o.sinks.Failure(snap.FailureReason)
	}
}

func (o *Observer) redraw() {
	if o.sinks.Redraw != nil {
		o.sinks.Redraw()
	}
}

// teardown is the automatic detach armed after the first terminal snapshot.
func (o *Observer) teardown() {
	o.linger = nil
	if o.state == StateDetached {
		return
	}
	o.Detach()
	if o.sinks.Dismissed != nil {
		o.sinks.Dismissed()
	}
}

// Detach ends the subscription, cancels the automatic teardown and flushes a
// pending redraw. Safe from any state, including from inside a sink.
// No sink fires after it returns.
func (o *Observer) Detach() {
	if o.state == StateDetached {
		return
	}
	prev := o.state
	o.state = StateDetached

	if o.linger != nil {
		o.linger.Stop()
		o.linger = nil
	}
	if o.stopPump != nil {
		close(o.stopPump)
		o.stopPump = nil
	}
	if o.stream != nil {
		o.stream.Close()
	}

	// Render the last known state before letting go
	o.coalescer.Dispose()

	o.log.Debug().Str("operation", o.OperationID()).Str("from", prev.String()).Msg("Observer detached")
}

// CancelOperation asks the source to cancel the attached operation. It does
// not change local state: a terminal snapshot from the source, or Detach,
// ends the attachment. Source errors are returned unchanged.
func (o *Observer) CancelOperation(ctx context.Context) error {
	id := o.OperationID()
	if id == "" {
		return ErrNotAttached
	}
	return o.source.CancelUpload(ctx, id)
}

// OperationID returns the operation passed to Attach, or "" before Attach.
func (o *Observer) OperationID() string {
	o.idMu.Lock()
	defer o.idMu.Unlock()
	return o.operationID
}

// State returns the current lifecycle state.
func (o *Observer) State() State {
	return o.state
}

// Snapshot returns the latest snapshot, if any has arrived.
func (o *Observer) Snapshot() (models.ProgressSnapshot, bool) {
	return o.snapshot, o.hasSnapshot
}

// Redraws returns how many redraws the coalescer has issued.
func (o *Observer) Redraws() int {
	return o.coalescer.Flushes()
}
