// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	// Context keys for logging
	ContextKeyRequestID  ContextKey = "request_id"
	ContextKeyActorID    ContextKey = "actor_id"
	ContextKeyRole       ContextKey = "role"
	ContextKeyTraceID    ContextKey = "trace_id"
	ContextKeyClientIP   ContextKey = "client_ip"
	ContextKeyUserAgent  ContextKey = "user_agent"
	ContextKeyMethod     ContextKey = "method"
	ContextKeyPath       ContextKey = "path"
	ContextKeyStatusCode ContextKey = "status_code"
	ContextKeyDuration   ContextKey = "duration_ms"
	ContextKeyTaskID     ContextKey = "task_id"
	ContextKeyTaskType   ContextKey = "task_type"
)

type loggerKey struct{}

// LogConfig holds logger configuration
type LogConfig struct {
	Level          string
	Format         string // json, text
	Output         string // stdout, stderr, file:<path>
	AddSource      bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRate     float64

	// Writer overrides Output when set.
	Writer io.Writer
}

// Logger wraps slog.Logger with context extraction.
type Logger struct {
	*slog.Logger
	config      *LogConfig
	contextKeys []ContextKey
}

var defaultLogger *Logger

// SetupLogger builds the process logger and installs it as the slog default.
func SetupLogger(level string, format string) *Logger {
	logger := NewLogger(&LogConfig{
		Level:          level,
		Format:         format,
		Output:         "stdout",
		AddSource:      level == "debug",
		ServiceName:    os.Getenv("SERVICE_NAME"),
		ServiceVersion: os.Getenv("SERVICE_VERSION"),
		Environment:    os.Getenv("APP_ENV"),
	})
	defaultLogger = logger
	slog.SetDefault(logger.Logger)

	return logger
}

// NewLogger creates a new logger. The handler chain is
// sanitization -> sampling (optional) -> context -> json/text.
func NewLogger(config *LogConfig) *Logger {
	if config == nil {
		config = &LogConfig{Level: "info", Format: "json", Output: "stdout"}
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(config.Level),
		AddSource: config.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			return replaceAttr(config, groups, a)
		},
	}

	writer := config.Writer
	if writer == nil {
		writer = getWriter(config.Output)
	}

	var handler slog.Handler
	switch config.Format {
	case "text":
		handler = NewPrettyTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	handler = NewContextHandler(handler)
	if config.SampleRate > 0 && config.SampleRate < 1.0 {
		handler = NewSamplingHandler(handler, config.SampleRate)
	}
	handler = NewSanitizationHandler(handler)

	var attrs []slog.Attr
	if config.ServiceName != "" {
		attrs = append(attrs, slog.String("service", config.ServiceName))
	}
	if config.ServiceVersion != "" {
		attrs = append(attrs, slog.String("version", config.ServiceVersion))
	}
	if config.Environment != "" {
		attrs = append(attrs, slog.String("env", config.Environment))
	}
	if len(attrs) > 0 {
		handler = handler.WithAttrs(attrs)
	}

	return &Logger{
		Logger:      slog.New(handler),
		config:      config,
		contextKeys: defaultContextKeys(),
	}
}

// WithContext creates a logger with context values automatically extracted
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	attrs := extractContextAttrs(ctx, l.contextKeys)
	if len(attrs) > 0 {
		return l.Logger.With(attrs...)
	}
	return l.Logger
}

// ParseLevel maps a level name to a slog level; unknown names mean info.
func ParseLevel(level string) slog.Level {
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

func getWriter(output string) io.Writer {
	switch {
	case output == "stderr":
		return os.Stderr
	case strings.HasPrefix(output, "file:"):
		file, err := os.OpenFile(strings.TrimPrefix(output, "file:"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return os.Stdout
		}
		return file
	default:
		return os.Stdout
	}
}

func defaultContextKeys() []ContextKey {
	return []ContextKey{
		ContextKeyRequestID,
		ContextKeyActorID,
		ContextKeyRole,
		ContextKeyTraceID,
		ContextKeyClientIP,
		ContextKeyUserAgent,
		ContextKeyMethod,
		ContextKeyPath,
		ContextKeyStatusCode,
		ContextKeyDuration,
		ContextKeyTaskID,
		ContextKeyTaskType,
	}
}

func extractContextAttrs(ctx context.Context, keys []ContextKey) []any {
	if ctx == nil {
		return nil
	}

	var attrs []any
	for _, key := range keys {
		val := ctx.Value(key)
		if val == nil {
			continue
		}
		keyStr := string(key)
		switch v := val.(type) {
		case string:
			if v != "" {
				attrs = append(attrs, slog.String(keyStr, v))
			}
		case int:
			attrs = append(attrs, slog.Int(keyStr, v))
		case int64:
			attrs = append(attrs, slog.Int64(keyStr, v))
		case time.Duration:
			attrs = append(attrs, slog.Duration(keyStr, v))
		case uuid.UUID:
			attrs = append(attrs, slog.String(keyStr, v.String()))
		default:
			attrs = append(attrs, slog.Any(keyStr, v))
		}
	}
	return attrs
}

func replaceAttr(config *LogConfig, _ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.Format(time.RFC3339Nano))
		}
	}

	// Rename level key for log aggregators
	if a.Key == slog.LevelKey && config.Format != "text" {
		a.Key = "severity"
	}

	if strings.HasSuffix(a.Key, "_ms") {
		if d, ok := a.Value.Any().(time.Duration); ok {
			a.Value = slog.Float64Value(float64(d.Microseconds()) / 1000)
		}
	}

	return a
}

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// FromContext extracts logger from context or returns default
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l.WithContext(ctx)
	}
	return GetDefault().WithContext(ctx)
}

// WithLogger adds logger to context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}
