// Package logging builds the process-level slog loggers used by the CLI and
// servers. Library code takes a *slog.Logger option instead of reaching in
// here, so embedders keep full control of their own output.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates the standard text logger for interactive use. Output goes to
// stderr so that stdout stays free for program output and JSON-RPC traffic.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: shortenErrorKey,
	}))
}

// NewJSON creates a machine-readable logger for server deployments.
func NewJSON(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: shortenErrorKey,
	}))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// shortenErrorKey standardizes the conventional "error" key to "err".
func shortenErrorKey(groups []string, a slog.Attr) slog.Attr {
	if a.Key == "error" {
		a.Key = "err"
	}
	return a
}
