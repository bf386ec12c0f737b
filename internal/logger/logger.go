package logger

import (
	"io"
	"log/slog"
	"os"

	"llm-chatbot/internal/config"
)

var Logger *slog.Logger

// InitLogger initializes structured logging based on configuration
func InitLogger(cfg *config.Config) {
	initWithWriter(os.Stdout, cfg.GinMode)
}

func initWithWriter(w io.Writer, ginMode string) {
	level := slog.LevelInfo
	if ginMode == "debug" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: ginMode == "debug",
	}

	Logger = slog.New(slog.NewJSONHandler(w, opts))
	Logger.Debug("Structured logging initialized", "level", level.String())
}

// L returns the configured logger, or slog's default before InitLogger runs.
func L() *slog.Logger {
	if Logger != nil {
		return Logger
	}
	return slog.Default()
}

func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}
