package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled
// from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the minimal logging interface the core depends on. Callers
// can provide their own implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// NoOpLogger discards all log messages. Useful for testing or when logging
// is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// AgentLoopLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It is cheap to copy via the With* methods.
type AgentLoopLogger struct {
	logger       *slog.Logger
	level        LogLevel
	context      map[string]any
	component    string
	invocationID string
}

// LoggerConfig configures construction of an AgentLoopLogger.
type LoggerConfig struct {
	Level        LogLevel
	Format       string // json or text
	Output       io.Writer
	AddSource    bool
	Component    string
	InvocationID string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// NewLogger builds an AgentLoopLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *AgentLoopLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &AgentLoopLogger{
		logger:       slog.New(handler),
		level:        cfg.Level,
		context:      map[string]any{},
		component:    cfg.Component,
		invocationID: cfg.InvocationID,
	}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *AgentLoopLogger) clone() *AgentLoopLogger {
	nl := *l
	nl.context = map[string]any{}
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute attached to every log entry.
func (l *AgentLoopLogger) WithContext(key string, value any) *AgentLoopLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (coordinator, pipeline, loop).
func (l *AgentLoopLogger) WithComponent(c string) *AgentLoopLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithInvocation attaches an invocation identifier.
func (l *AgentLoopLogger) WithInvocation(id string) *AgentLoopLogger {
	nl := l.clone()
	nl.invocationID = id
	return nl
}

func (l *AgentLoopLogger) attrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+len(args)/2+2)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.invocationID != "" {
		attrs = append(attrs, slog.String("invocation_id", l.invocationID))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(k, args[i+1]))
		}
	}
	return attrs
}

func (l *AgentLoopLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	l.logger.LogAttrs(context.Background(), level, msg, l.attrs(args)...)
}

// Debug logs at debug level.
func (l *AgentLoopLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *AgentLoopLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *AgentLoopLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *AgentLoopLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// LogCall records execution details for one wrapped call (model or tool).
func (l *AgentLoopLogger) LogCall(function string, attempts int, dur time.Duration, err error) {
	args := []any{"function", function, "attempts", attempts, "duration_ms", dur.Milliseconds()}
	if err != nil {
		l.Error("pipeline.call.failed", append(args, "error", err.Error())...)
		return
	}
	l.Info("pipeline.call.completed", args...)
}

// LogRetry records one retry wait before a new attempt.
func (l *AgentLoopLogger) LogRetry(function string, attempt int, delay time.Duration, category string) {
	l.Warn("pipeline.retry.attempt",
		"function", function,
		"attempt", attempt,
		"delay_ms", delay.Milliseconds(),
		"category", category,
	)
}

// LogTimeout records a call attempt hitting its deadline.
func (l *AgentLoopLogger) LogTimeout(function string, limit time.Duration) {
	l.Warn("pipeline.call.timeout", "function", function, "limit_ms", limit.Milliseconds())
}

// LogDelivery records delivery-loop throughput for one priority level.
func (l *AgentLoopLogger) LogDelivery(priority string, delivered, dropped int) {
	l.Debug("coordinator.delivery", "priority", priority, "delivered", delivered, "dropped", dropped)
}

// NewSlogLogger creates a new AgentLoopLogger with the specified level and
// format.
func NewSlogLogger(level LogLevel, format string, addSource bool) *AgentLoopLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
