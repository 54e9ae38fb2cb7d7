package ui

import (
	"os"

	"golang.org/x/term"
)

const defaultTerminalWidth = 80

// ANSIEnabled reports whether stdout accepts ANSI styling.
func ANSIEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// TerminalWidth returns the stdout width, or 80 when stdout is not a terminal.
func TerminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultTerminalWidth
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return defaultTerminalWidth
	}
	return width
}
