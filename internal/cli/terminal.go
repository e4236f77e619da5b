package cli

import (
	"io"
	"log/slog"

	"golang.org/x/term"
)

// TerminalDetector reports whether a file descriptor is an interactive terminal
type TerminalDetector interface {
	IsTerminal(fd int) bool
}

// DefaultTerminalDetector uses golang.org/x/term
type DefaultTerminalDetector struct{}

// IsTerminal implements TerminalDetector
func (d *DefaultTerminalDetector) IsTerminal(fd int) bool {
	isTerminal := term.IsTerminal(fd)
	slog.Debug("terminal detection result", "fd", fd, "is_terminal", isTerminal)
	return isTerminal
}

// fdWriter is satisfied by *os.File
type fdWriter interface {
	io.Writer
	Fd() uintptr
}

// isInteractive reports whether w is a terminal. Buffers and pipes are not.
func (c *CLI) isInteractive(w io.Writer) bool {
	f, ok := w.(fdWriter)
	if !ok {
		return false
	}
	return c.terminalDetector.IsTerminal(int(f.Fd()))
}
