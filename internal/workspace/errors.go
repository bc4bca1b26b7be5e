package workspace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// StatusWidth is the display width file I/O failures are trimmed to.
const StatusWidth = 160

// IOError is a filesystem failure tied to the user action that triggered it.
// The action is aborted and in-memory state is left untouched.
type IOError struct {
	Op   string // "read", "write", "remove", "list"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// StatusMessage renders err for the status area: verbatim, single line,
// trimmed to width display cells.
func StatusMessage(err error, width int) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		msg = fmt.Sprintf("Failed to %s %s: %v", ioErr.Op, ioErr.Path, ioErr.Err)
	}
	msg = strings.Join(strings.Fields(msg), " ")
	if width <= 0 {
		width = StatusWidth
	}
	if runewidth.StringWidth(msg) <= width {
		return msg
	}
	return runewidth.Truncate(msg, width, "…")
}
