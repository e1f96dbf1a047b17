package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

var base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init configures the process-wide logger. Production environments log JSON
// at info level, everything else logs text at debug level.
func Init(environment string) {
	var handler slog.Handler
	switch strings.ToLower(environment) {
	case "production", "prod", "staging":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	case "test":
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	base = slog.New(handler).With("service", "ad-decisioning")
	slog.SetDefault(base)
}

func L() *slog.Logger { return base }

func Debug(msg string, args ...any) { base.Debug(msg, args...) }

func Info(msg string, args ...any) { base.Info(msg, args...) }

func Warn(msg string, args ...any) { base.Warn(msg, args...) }

func Error(msg string, args ...any) { base.Error(msg, args...) }

func Fatal(msg string, args ...any) {
	base.Error(msg, args...)
	os.Exit(1)
}

// Ctx returns a logger annotated with the trace id carried by ctx, if any.
func Ctx(ctx context.Context) *slog.Logger {
	if tid := TraceIDFromContext(ctx); tid != "" {
		return base.With("trace_id", tid)
	}
	return base
}
