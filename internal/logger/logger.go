package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/modern-bank-ledger/internal/config"
)

// NewLogger creates and configures a new slog.Logger writing JSON to stdout.
// Every record carries the application name and environment.
func NewLogger(cfg *config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.Logging.Level)

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source code location to log output
		AddSource: level == slog.LevelDebug,
	}

	handler := slog.NewJSONHandler(w, opts)
	logger := slog.New(handler)
	if cfg.Application.Name != "" {
		logger = logger.With("app", cfg.Application.Name, "env", cfg.Application.Env)
	}

	logger.Info("logger initialized", "level", level)

	return logger
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCorrelationID returns a child logger tagged with the request correlation id.
// An empty id returns the logger unchanged.
func WithCorrelationID(l *slog.Logger, correlationID string) *slog.Logger {
	if correlationID == "" {
		return l
	}
	return l.With("correlation_id", correlationID)
}
