package progress

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/rescale/cloudfm/internal/constants"
	"github.com/rescale/cloudfm/internal/models"
)

// BarView renders one operation as an mpb progress bar with item counters
// and the item currently in flight.
type BarView struct {
	progress *mpb.Progress
	bar      *mpb.Bar

	mu       sync.Mutex // guards the fields read by decorators on mpb's goroutine
	label    string
	items    string
	current  string
	finished bool

	lastRender time.Time
}

// NewBarView creates a bar view writing to w.
func NewBarView(w io.Writer) *BarView {
	v := &BarView{
		progress: mpb.New(
			mpb.WithOutput(w),
			mpb.WithRefreshRate(constants.BarRefreshRate),
			mpb.WithWidth(100),
		),
		lastRender: time.Now(),
	}

	v.bar = v.progress.New(0,
		mpb.BarStyle().
			Lbound("[").
			Filler("█"). // U+2588 - Full block for completed portion
			Tip("█").
			Padding("░"). // U+2591 - Light shade for remaining portion
			Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				v.mu.Lock()
				defer v.mu.Unlock()
				return fmt.Sprintf("%s %s", v.label, v.items)
			}, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.OnComplete(
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace), "done",
			),
			decor.Any(func(decor.Statistics) string {
				v.mu.Lock()
				defer v.mu.Unlock()
				if v.current == "" {
					return ""
				}
				return "  " + v.current
			}),
		),
	)
	return v
}

// Render updates the bar from a snapshot.
func (v *BarView) Render(snap models.ProgressSnapshot) {
	v.mu.Lock()
	if v.finished {
		v.mu.Unlock()
		return
	}
	v.label = snap.Label
	v.items = itemCounter(snap)
	v.current = truncatePath(snap.CurrentItemLabel, 2)
	v.finished = snap.IsTerminal
	v.mu.Unlock()

	now := time.Now()
	if snap.TotalBytes > 0 {
		v.bar.SetTotal(snap.TotalBytes, false)
	}
	v.bar.EwmaSetCurrent(snap.TransferredBytes, now.Sub(v.lastRender))
	v.lastRender = now

	if !snap.IsTerminal {
		return
	}
	// Written before the bar completes so mpb flushes it on its final render
	v.Notice(summaryLine(snap))
	if snap.FailureReason == "" {
		// Exact 100% even when totals were never discovered
		v.bar.SetTotal(-1, true)
	} else {
		v.bar.Abort(false) // keep the bar visible to show where it stopped
	}
}

// Notice prints above the bar.
func (v *BarView) Notice(msg string) {
	fmt.Fprintln(v.progress, msg)
}

// Close aborts an unfinished bar and waits for mpb to release the terminal.
func (v *BarView) Close() {
	v.mu.Lock()
	finished := v.finished
	v.finished = true
	v.mu.Unlock()

	if !finished {
		v.bar.Abort(false)
	}
	v.progress.Wait()
}

// itemCounter formats "[done/total]", with failures when there are any.
func itemCounter(snap models.ProgressSnapshot) string {
	if snap.FailedItems > 0 {
		return fmt.Sprintf("[%d/%d, %d failed]", snap.CompletedItems, snap.TotalItems, snap.FailedItems)
	}
	return fmt.Sprintf("[%d/%d]", snap.CompletedItems, snap.TotalItems)
}

// summaryLine is the one-line result printed when an operation ends.
func summaryLine(snap models.ProgressSnapshot) string {
	elapsed := snap.UpdatedAt.Sub(snap.StartedAt).Round(time.Millisecond)
	if snap.FailureReason == "" {
		return fmt.Sprintf("✓ %s: %d items, %.1f MiB in %s",
			snap.Label, snap.CompletedItems, float64(snap.TransferredBytes)/(1024*1024), elapsed)
	}
	return fmt.Sprintf("✗ %s: %s (%d done, %d failed)",
		snap.Label, snap.FailureReason, snap.CompletedItems, snap.FailedItems)
}

// truncatePath truncates a file path to show only the last N components
// Example: truncatePath("/a/b/c/d/file.txt", 3) → "…/c/d/file.txt"
func truncatePath(path string, maxComponents int) string {
	if path == "" {
		return ""
	}
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return path
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}
