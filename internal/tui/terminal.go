// Package tui holds the launcher's terminal presentation: icons, styles and the status banner.
package tui

import (
	"io"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

type fdWriter interface {
	Fd() uintptr
}

var (
	isTerminalFunc = term.IsTerminal
	getSizeFunc    = term.GetSize
	noColorFunc    = termenv.EnvNoColor
)

const defaultWidth = 80

// SetIsTerminalFuncForTesting overrides the terminal detection function and returns a restore function.
// This is intended for cross-package tests that need deterministic TTY detection.
func SetIsTerminalFuncForTesting(fn func(int) bool) func() {
	previous := isTerminalFunc
	isTerminalFunc = fn
	return func() {
		isTerminalFunc = previous
	}
}

// IsTerminalWriter reports whether the writer wraps a file descriptor bound to a terminal.
func IsTerminalWriter(writer io.Writer) bool {
	if w, ok := writer.(fdWriter); ok {
		return isTerminalFunc(int(w.Fd()))
	}
	return false
}

// ShouldColorize is true for terminals unless NO_COLOR is set.
func ShouldColorize(writer io.Writer) bool {
	return IsTerminalWriter(writer) && !noColorFunc()
}

// Width returns the terminal width of writer, or 80 when it is not a terminal.
func Width(writer io.Writer) int {
	w, ok := writer.(fdWriter)
	if !ok || !isTerminalFunc(int(w.Fd())) {
		return defaultWidth
	}
	width, _, err := getSizeFunc(int(w.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}
