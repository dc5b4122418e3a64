package logger

import (
	"context"
	"fmt"
	"log/slog"

	tracectx "github.com/insightrix/insightra/pkg/trace/context"
)

// defaultContext returns a trace-aware context for global logging methods.
func defaultContext() context.Context {
	if ctx := tracectx.GetContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// Info logs an info message.
func Info(args ...any) {
	GetLogger().Log(defaultContext(), slog.LevelInfo, fmt.Sprint(args...))
}

// Infow logs a structured info message.
func Infow(msg string, keysAndValues ...any) {
	InfoContext(defaultContext(), msg, keysAndValues...)
}

// InfoContext logs a structured info message with context.
func InfoContext(ctx context.Context, msg string, keysAndValues ...any) {
	GetLogger().Log(ctx, slog.LevelInfo, msg, keysAndValues...)
}

// Debug logs a debug message.
func Debug(args ...any) {
	GetLogger().Log(defaultContext(), slog.LevelDebug, fmt.Sprint(args...))
}

// Debugw logs a structured debug message.
func Debugw(msg string, keysAndValues ...any) {
	DebugContext(defaultContext(), msg, keysAndValues...)
}

// DebugContext logs a structured debug message with context.
func DebugContext(ctx context.Context, msg string, keysAndValues ...any) {
	GetLogger().Log(ctx, slog.LevelDebug, msg, keysAndValues...)
}

// Warn logs a warn message.
func Warn(args ...any) {
	GetLogger().Log(defaultContext(), slog.LevelWarn, fmt.Sprint(args...))
}

// Warnw logs a structured warn message.
func Warnw(msg string, keysAndValues ...any) {
	WarnContext(defaultContext(), msg, keysAndValues...)
}

// WarnContext logs a structured warn message with context.
func WarnContext(ctx context.Context, msg string, keysAndValues ...any) {
	GetLogger().Log(ctx, slog.LevelWarn, msg, keysAndValues...)
}

// Error logs an error message.
func Error(args ...any) {
	GetLogger().Log(defaultContext(), slog.LevelError, fmt.Sprint(args...))
}

// Errorw logs a structured error message.
func Errorw(msg string, keysAndValues ...any) {
	ErrorContext(defaultContext(), msg, keysAndValues...)
}

// ErrorContext logs a structured error message with context.
func ErrorContext(ctx context.Context, msg string, keysAndValues ...any) {
	GetLogger().Log(ctx, slog.LevelError, msg, keysAndValues...)
}

// Infow logs a structured message at info level.
func (l *Logger) Infow(msg string, keysAndValues ...any) {
	l.Logger.Log(defaultContext(), slog.LevelInfo, msg, keysAndValues...)
}

// Debugw logs a structured message at debug level.
func (l *Logger) Debugw(msg string, keysAndValues ...any) {
	l.Logger.Log(defaultContext(), slog.LevelDebug, msg, keysAndValues...)
}

// Warnw logs a structured message at warn level.
func (l *Logger) Warnw(msg string, keysAndValues ...any) {
	l.Logger.Log(defaultContext(), slog.LevelWarn, msg, keysAndValues...)
}

// Errorw logs a structured message at error level.
func (l *Logger) Errorw(msg string, keysAndValues ...any) {
	l.Logger.Log(defaultContext(), slog.LevelError, msg, keysAndValues...)
}
