//go:build !windows

package progress

import "os"

// enableVirtualTerminal is a no-op: Unix terminals handle ANSI natively.
func enableVirtualTerminal(*os.File) bool {
	return true
}
