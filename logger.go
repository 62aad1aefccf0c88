package framekit

import (
	"log/slog"

	"github.com/gogpu/framekit/internal/logging"
)

// SetLogger configures the logger for framekit and all its sub-packages.
// By default, framekit produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by framekit:
//   - [slog.LevelDebug]: pool and heap growth, CPU waits, reclamation counts
//   - [slog.LevelInfo]: lifecycle events (device created, resized, closed)
//   - [slog.LevelWarn]: non-fatal issues (skipped backend commands, release errors)
//
// Example:
//
//	// Enable info-level logging to stderr:
//	framekit.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	framekit.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.SetLogger(l)
}

// Logger returns the current logger used by framekit.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}
