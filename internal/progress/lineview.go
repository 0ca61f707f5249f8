package progress

import (
	"fmt"

	"github.com/rescale/cloudfm/internal/logging"
	"github.com/rescale/cloudfm/internal/models"
)

// LineView logs progress as structured lines. Used when stderr is not a
// terminal, so CI logs and redirected output stay readable. Only redraws that
// change the item counters produce a line.
type LineView struct {
	logger   *logging.Logger
	done     int
	finished bool
}

// NewLineView creates a line view logging through logger.
func NewLineView(logger *logging.Logger) *LineView {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LineView{logger: logger, done: -1}
}

// Render logs the snapshot if an item finished since the last line.
func (v *LineView) Render(snap models.ProgressSnapshot) {
	if v.finished {
		return
	}

	if snap.IsTerminal {
		v.finished = true
		event := v.logger.Info()
		if snap.FailureReason != "" {
			event = v.logger.Error().Str("reason", snap.FailureReason)
		}
		event.
			Str("operation", snap.OperationID).
			Int("completed", snap.CompletedItems).
			Int("failed", snap.FailedItems).
			Int64("bytes", snap.TransferredBytes).
			Msg(summaryLine(snap))
		return
	}

	done := snap.CompletedItems + snap.FailedItems
	if done == v.done {
		return
	}
	v.done = done

	v.logger.Info().
		Str("operation", snap.OperationID).
		Str("items", itemCounter(snap)).
		Str("percent", percent(snap)).
		Str("current", snap.CurrentItemLabel).
		Msg(snap.Label)
}

// Notice logs msg as a warning.
func (v *LineView) Notice(msg string) {
	v.logger.Warn().Msg(msg)
}

// Close is a no-op; the logger is owned by the caller.
func (v *LineView) Close() {}

func percent(snap models.ProgressSnapshot) string {
	return fmt.Sprintf("%.1f%%", snap.Fraction()*100)
}
