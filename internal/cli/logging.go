package cli

import (
	"io"
	"log/slog"
	"strings"

	"singbirds-quiz-service/internal/config"
)

// newLogger builds the process logger from config; the --log-level flag wins
// over log.level.
func newLogger(w io.Writer, cfg config.Config, levelOverride string) *slog.Logger {
	level := cfg.Log.Level
	if levelOverride != "" {
		level = levelOverride
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("service", "singbirds")
}

func parseLevel(raw string) slog.Level {
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
