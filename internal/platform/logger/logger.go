package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. Services receive it through their
// WithLogger options; nothing reads the slog default.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("TRANCHE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
