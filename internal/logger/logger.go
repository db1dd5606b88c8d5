// Package logger provides structured logging helpers.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

type Logger struct {
	out   io.Writer
	err   io.Writer
	quiet bool
	debug bool
	ops   *charmlog.Logger
}

func New(out io.Writer, err io.Writer, quiet bool, debug bool) *Logger {
	return &Logger{
		out:   out,
		err:   err,
		quiet: quiet,
		debug: debug,
		ops:   newOperational(io.Discard),
	}
}

// WithOperationalLog returns a copy of the logger whose operational records go to w.
func (logger *Logger) WithOperationalLog(w io.Writer) *Logger {
	clone := *logger
	clone.ops = newOperational(w)
	return &clone
}

// Operational is the diagnostic log: installer output, engine events and full error chains.
// It never writes to the console.
func (logger *Logger) Operational() *charmlog.Logger {
	if logger == nil || logger.ops == nil {
		return newOperational(io.Discard)
	}
	return logger.ops
}

func (logger *Logger) Log(message string, forceShow bool) {
	if logger.quiet && !forceShow && !logger.debug {
		return
	}
	if _, err := fmt.Fprintln(logger.out, message); err != nil {
		return
	}
}

func (logger *Logger) Debug(message string) {
	logger.Operational().Debug(message)
	if !logger.debug {
		return
	}
	if _, err := fmt.Fprintln(logger.out, message); err != nil {
		return
	}
}

func (logger *Logger) Error(message string) {
	logger.Operational().Error(message)
	if _, err := fmt.Fprintln(logger.err, message); err != nil {
		return
	}
}

func (logger *Logger) Errorf(format string, args ...any) {
	if _, err := fmt.Fprintf(logger.err, format, args...); err != nil {
		return
	}
}

// OpenOperationalLog opens path for appending, creating parent directories.
func OpenOperationalLog(fs afero.Fs, path string) (afero.File, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	return fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

func newOperational(w io.Writer) *charmlog.Logger {
	return charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		Level:           charmlog.DebugLevel,
		Formatter:       charmlog.LogfmtFormatter,
	})
}
