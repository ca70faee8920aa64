// Package logger provides leveled, structured logging for etasync.
// Messages carry slog-style key/value attributes. Debug messages are
// only emitted when verbose mode is enabled via the --verbose flag.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	jsonFmt bool
	output  io.Writer = os.Stderr
	base    *slog.Logger
)

func init() {
	rebuild()
}

// rebuild recreates the handler (caller must hold the write lock, or be init).
func rebuild() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonFmt {
		base = slog.New(slog.NewJSONHandler(output, opts))
		return
	}
	base = slog.New(slog.NewTextHandler(output, opts))
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	rebuild()
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetJSON switches between JSON and logfmt-style text output.
func SetJSON(v bool) {
	mu.Lock()
	defer mu.Unlock()
	jsonFmt = v
	rebuild()
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	rebuild()
}

// Debug logs a message if verbose mode is enabled.
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// Warn logs a warning.
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// Error logs an error.
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if verbose {
		fmt.Fprintf(output, "\n=== %s ===\n", name)
	}
}

// With returns a logger carrying the given attributes on every record.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}
