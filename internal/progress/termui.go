package progress

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/rescale/cloudfm/internal/logging"
)

// Style selects how an operation is drawn in a terminal.
type Style string

const (
	StyleBars    Style = "bars"    // mpb bar with counters and speed
	StyleCompact Style = "compact" // single progressbar line
	StylePlain   Style = "plain"   // log lines only
)

// ParseStyle validates a configured ui style. Empty selects bars.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case "", StyleBars:
		return StyleBars, nil
	case StyleCompact:
		return StyleCompact, nil
	case StylePlain:
		return StylePlain, nil
	default:
		return "", fmt.Errorf("unknown ui style %q (want bars, compact or plain)", s)
	}
}

// NewTerminalView picks a view for out. Anything that is not an interactive
// terminal with ANSI support gets log lines regardless of style.
func NewTerminalView(out *os.File, style Style, logger *logging.Logger) View {
	if style == StylePlain || !IsTerminal(out) || !enableVirtualTerminal(out) {
		return NewLineView(logger)
	}
	if style == StyleCompact {
		return NewCompactView(out)
	}
	return NewBarView(out)
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
