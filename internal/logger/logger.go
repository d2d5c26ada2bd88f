package logger

import (
	"log/slog"
	"os"

	"document-archive-platform/internal/config"
)

// Logger is replaced by InitLogger; the default keeps early startup
// and test logging structured.
var Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// InitLogger initializes structured JSON logging based on configuration
func InitLogger(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.GinMode == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.GinMode == "debug",
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	Logger = slog.New(handler).With("service", cfg.ServiceName)

	Logger.Info("Structured logging initialized", "level", level.String())
}

// With returns a child logger carrying a component field. Safe before
// InitLogger: falls back to slog's default logger.
func With(component string) *slog.Logger {
	if Logger == nil {
		return slog.Default().With("component", component)
	}
	return Logger.With("component", component)
}

// Helper functions for common log operations
func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}
