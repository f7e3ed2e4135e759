// Package logger builds the zerolog loggers used across the service and
// carries them through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
)

// New creates a console logger at info level.
func New() zerolog.Logger {
	return NewConsole(os.Stdout).Level(zerolog.InfoLevel)
}

// NewWithLevel creates a console logger at the named level (debug, info, warn, error).
func NewWithLevel(level string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}
	return NewConsole(os.Stdout).Level(lvl), nil
}

// NewWithWriter creates a JSON logger writing to w
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// NewConsole creates a human-readable logger writing to out at every level.
func NewConsole(out io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).With().Timestamp().Caller().Logger()
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from the context or returns a default logger
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithUser returns a context whose logger tags every entry with the user id.
func WithUser(ctx context.Context, userID string) context.Context {
	l := FromContext(ctx).With().Str("user_id", userID).Logger()
	return WithContext(ctx, l)
}

