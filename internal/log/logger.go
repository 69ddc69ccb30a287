// Package log builds the process-wide slog handler.
package log

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// NewHandler builds a slog handler for the given format. "console" uses
// a colorized tint handler for local development; anything else falls
// back to the plain text handler.
func NewHandler(format string, level slog.Level) slog.Handler {
	if format == "console" {
		return tint.NewHandler(os.Stdout, &tint.Options{Level: level})
	}
	return slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
}
