package logger

import (
	"log/slog"
	"os"
)

// New returns a structured JSON logger writing to stdout. Filter-internal
// detail (matched patterns, stripped terms) is logged at debug level only
// and must never reach client-facing responses.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelFromEnv(),
	}))
}

func levelFromEnv() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
