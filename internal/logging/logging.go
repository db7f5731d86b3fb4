package logging

import (
	"io"
	"log/slog"
	"os"
)

// ParseLevel maps a level name to a slog level. Unknown names fall back to
// error, the production default.
func ParseLevel(name string) slog.Level {
	switch name {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Init installs a text logger on stderr as the default. LOG_LEVEL, when
// set, overrides level.
func Init(level string) *slog.Logger {
	if l, ok := os.LookupEnv("LOG_LEVEL"); ok {
		level = l
	}
	logger := New(os.Stderr, ParseLevel(level))
	slog.SetDefault(logger)
	return logger
}

// New returns a text logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		}),
	)
}
