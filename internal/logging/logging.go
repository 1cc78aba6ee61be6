// Package logging builds the one *slog.Logger each process uses,
// following the teacher's convention of pinning diagnostic output to
// stderr so it never collides with a protocol or data stream on
// stdout.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New returns a text-handler logger writing to stderr, at Debug level
// when debug is true and Info otherwise.
func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stderr, debug)
}

// NewWithWriter is New with an explicit destination, for tests.
func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
