package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

func LevelFromEnv(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func NewJSON(level slog.Level) *slog.Logger {
	return New("json", level, os.Stdout)
}

// New builds a logger writing to w; format "text" selects the text handler,
// anything else is JSON.
func New(format string, level slog.Level, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
