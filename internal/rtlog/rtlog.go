// Package rtlog is the debug/warning/assertion sink shared by pool and
// allocator: a package-level *slog.Logger that defaults to discarding
// everything, so the library is silent until a caller wires a real logger
// in with SetLogger.
package rtlog

import (
	"fmt"
	"io"
	"log/slog"
)

var logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// SetLogger installs l as the destination for all rtlog output. Passing nil
// restores the default discarding logger.
func SetLogger(l *slog.Logger) {
	if l == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		return
	}
	logger = l
}

// Debug logs a "called" / "using chunk" / "returning pointer" style event.
func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

// Warn logs an oversize-request or similar recoverable-but-noteworthy event.
func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

// Assertf logs a fatal event and panics. Reserved for invariant violations
// that indicate a bug in this package, never for caller-reachable failure
// (those return sentinel errors or nil instead).
func Assertf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.Error(msg)
	panic("rtsafe: " + msg)
}
