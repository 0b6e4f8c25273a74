// Package logging provides structured logging setup using Go's standard library log/slog package.
//
// The gateway logs logfmt-style key=value pairs. String levels
// (ERROR, WARNING, INFO, DEBUG) map onto slog levels.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a new structured logger with the specified log level.
// Supported levels (case-insensitive): ERROR, WARNING, INFO, DEBUG.
// Invalid levels default to INFO.
func NewLogger(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})

	return slog.New(handler)
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for invalid or empty levels (safe default).
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "ERROR":
		return slog.LevelError
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "INFO":
		return slog.LevelInfo
	case "DEBUG":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// LevelFromVerbose maps the VERBOSE environment variable convention
// (0 = WARNING, 1 = INFO, 2 = DEBUG) to a slog.Level.
// Unrecognized values default to INFO.
func LevelFromVerbose(verbose string) slog.Level {
	switch verbose {
	case "0":
		return slog.LevelWarn
	case "2":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
