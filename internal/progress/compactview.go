package progress

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/rescale/cloudfm/internal/models"
)

// CompactView renders an operation as a single progressbar line. Used for
// narrow terminals and the "compact" ui style.
type CompactView struct {
	out      io.Writer
	bar      *progressbar.ProgressBar
	max      int64
	finished bool
}

// NewCompactView creates a compact view writing to w. It shows a spinner
// until the operation's byte total is known.
func NewCompactView(w io.Writer) *CompactView {
	return &CompactView{
		out: w,
		max: -1,
		bar: progressbar.NewOptions64(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionThrottle(0),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprint(w, "\n")
			}),
		),
	}
}

// Render updates the bar from a snapshot.
func (v *CompactView) Render(snap models.ProgressSnapshot) {
	if v.finished {
		return
	}
	if snap.TotalBytes > 0 && snap.TotalBytes != v.max {
		v.max = snap.TotalBytes
		v.bar.ChangeMax64(snap.TotalBytes)
	}

	desc := fmt.Sprintf("%s %s", snap.Label, itemCounter(snap))
	if snap.CurrentItemLabel != "" {
		desc += " " + truncatePath(snap.CurrentItemLabel, 1)
	}
	v.bar.Describe(desc)
	_ = v.bar.Set64(snap.TransferredBytes)

	if !snap.IsTerminal {
		return
	}
	v.finished = true
	if snap.FailureReason == "" {
		_ = v.bar.Finish()
	} else {
		_ = v.bar.Exit()
		fmt.Fprint(v.out, "\n")
	}
	fmt.Fprintln(v.out, summaryLine(snap))
}

// Notice clears the line, prints msg and redraws the bar below it.
func (v *CompactView) Notice(msg string) {
	if v.finished {
		fmt.Fprintln(v.out, msg)
		return
	}
	_ = v.bar.Clear()
	fmt.Fprintln(v.out, msg)
	_ = v.bar.RenderBlank()
}

// Close ends the bar line if the operation never finished.
func (v *CompactView) Close() {
	if v.finished {
		return
	}
	v.finished = true
	_ = v.bar.Exit()
	fmt.Fprint(v.out, "\n")
}
