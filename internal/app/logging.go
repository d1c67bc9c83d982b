package app

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT values.
func NewLogger(w io.Writer, levelRaw, formatRaw string) *slog.Logger {
	options := &slog.HandlerOptions{Level: ParseLogLevel(levelRaw)}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}
	return slog.New(slog.NewTextHandler(w, options))
}

func ParseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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
