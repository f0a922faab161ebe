// Package logger wires structured logging for the service.
package logger

import (
	"log/slog"
	"os"
)

// New returns a slog logger: JSON in production, text with debug level
// everywhere else.
func New(environment string) *slog.Logger {
	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}
