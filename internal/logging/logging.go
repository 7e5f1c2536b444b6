// Package logging builds the process-wide structured loggers.
package logging

import (
	"io"
	"log/slog"
	"os"
)

func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// New returns a JSON logger writing to stdout. Debug widens the level; keep
// it off in production, request bodies appear at debug.
func New(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
