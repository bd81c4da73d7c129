package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Logger provides color-coded leveled logging to stderr
type Logger struct {
	Verbose bool
	Quiet   bool
}

var (
	infoColor    = color.New(color.FgBlue)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
	debugColor   = color.New(color.FgCyan)
)

// NewLogger creates a new logger. Color is disabled when requested or when
// stderr is not a terminal.
func NewLogger(verbose, quiet, noColor bool) *Logger {
	if noColor || !term.IsTerminal(int(os.Stderr.Fd())) {
		color.NoColor = true
	}
	return &Logger{
		Verbose: verbose,
		Quiet:   quiet,
	}
}

func (l *Logger) log(c *color.Color, tag, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, c.Sprint(tag+" "+msg))
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.Quiet {
		return
	}
	l.log(infoColor, "[INFO]", format, args...)
}

// Success logs a success message
func (l *Logger) Success(format string, args ...interface{}) {
	if l.Quiet {
		return
	}
	l.log(successColor, "[SUCCESS]", format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.log(warningColor, "[WARNING]", format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(errorColor, "[ERROR]", format, args...)
}

// Debug logs a debug message (only if verbose is enabled)
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.Verbose {
		return
	}
	l.log(debugColor, "[DEBUG]", format, args...)
}
