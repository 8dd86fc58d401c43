package logging

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/procopio420/basecommerce/internal/common/types"
)

// Context keys for logging attributes
type contextKey string

const (
	tenantIDKey contextKey = "tenant_id"
	eventIDKey  contextKey = "event_id"
)

// Config holds logging configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// Setup initializes the global logger with the given configuration.
func Setup(cfg Config) {
	level := parseLevel(cfg.Level)

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: level,
	}

	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// WithTenantID adds a tenant ID to the context.
func WithTenantID(ctx context.Context, id types.TenantID) context.Context {
	return context.WithValue(ctx, tenantIDKey, id)
}

// WithEventID adds an event ID to the context.
func WithEventID(ctx context.Context, id types.EventID) context.Context {
	return context.WithValue(ctx, eventIDKey, id)
}

// TenantIDFromContext extracts the tenant ID from context.
func TenantIDFromContext(ctx context.Context) types.TenantID {
	if id, ok := ctx.Value(tenantIDKey).(types.TenantID); ok {
		return id
	}
	return types.TenantID{}
}

// EventIDFromContext extracts the event ID from context.
func EventIDFromContext(ctx context.Context) types.EventID {
	if id, ok := ctx.Value(eventIDKey).(types.EventID); ok {
		return id
	}
	return types.EventID{}
}

// FromContext returns a logger with context attributes (tenant_id, event_id).
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if tenantID := TenantIDFromContext(ctx); !tenantID.IsEmpty() {
		logger = logger.With("tenant_id", tenantID.String())
	}

	if eventID := EventIDFromContext(ctx); !eventID.IsEmpty() {
		logger = logger.With("event_id", eventID.String())
	}

	return logger
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// InfoContext logs at info level with context attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Info(msg, args...)
}

// DebugContext logs at debug level with context attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Debug(msg, args...)
}

// WarnContext logs at warn level with context attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Warn(msg, args...)
}

// ErrorContext logs at error level with context attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Error(msg, args...)
}
