// Package log provides structured logging for the skull.
// It wraps slog with a process-wide logger.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"deathteller/skull/internal/controller"
)

var (
	mu     sync.Mutex
	logger *slog.Logger
)

// Init initializes the global logger with the specified level.
// Valid levels: "debug", "info", "warn", "error"
func Init(level string) {
	InitWriter(os.Stdout, level)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var l *slog.Logger
	// Use JSON in production, text in development
	if os.Getenv("GO_ENV") == "production" {
		l = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		l = slog.New(slog.NewTextHandler(w, opts))
	}

	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// L returns the global logger instance.
func L() *slog.Logger {
	mu.Lock()
	l := logger
	mu.Unlock()
	if l == nil {
		Init("info")
		return L()
	}
	return l
}

func Debug(msg string, args ...any) { L().Debug(msg, args...) }

func Info(msg string, args ...any) { L().Info(msg, args...) }

func Warn(msg string, args ...any) { L().Warn(msg, args...) }

func Error(msg string, args ...any) { L().Error(msg, args...) }

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

// Sink forwards controller log lines to slog with a tag attribute.
type Sink struct {
	Logger *slog.Logger
}

func NewSink() Sink { return Sink{} }

func (s Sink) Log(level controller.LogLevel, tag, message string) {
	l := s.Logger
	if l == nil {
		l = L()
	}
	l.Log(context.Background(), toSlog(level), message, "tag", tag)
}

func toSlog(level controller.LogLevel) slog.Level {
	switch level {
	case controller.LevelDebug:
		return slog.LevelDebug
	case controller.LevelWarn:
		return slog.LevelWarn
	case controller.LevelError:
		return slog.LevelError
	}
	return slog.LevelInfo
}
