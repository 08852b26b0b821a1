// Package observability provides structured logging for the extraction pipeline.
package observability

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

// Logger wraps zerolog with pipeline-specific helpers.
type Logger struct {
	zl zerolog.Logger
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level       string
	Format      string // json or console
	Output      io.Writer
	ServiceName string
}

// NewLogger creates a new Logger with the given configuration.
func NewLogger(cfg LogConfig) *Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var zl zerolog.Logger
	if cfg.Format == "console" {
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		})
	} else {
		zl = zerolog.New(output)
	}

	zl = zl.With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()

	return &Logger{zl: zl}
}

// DefaultLogger returns a logger with default development settings.
func DefaultLogger() *Logger {
	return NewLogger(LogConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "component-extractor",
	})
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Debug logs a debug message.
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }

// Info logs an info message.
func (l *Logger) Info() *zerolog.Event { return l.zl.Info() }

// Warn logs a warning message.
func (l *Logger) Warn() *zerolog.Event { return l.zl.Warn() }

// Error logs an error message.
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal() *zerolog.Event { return l.zl.Fatal() }

// WithJob returns a logger scoped to an extraction job.
func (l *Logger) WithJob(jobID string) *Logger {
	return &Logger{zl: l.zl.With().Str("job_id", jobID).Logger()}
}

// WithTool returns a logger scoped to an external tool invocation.
func (l *Logger) WithTool(tool string) *Logger {
	return &Logger{zl: l.zl.With().Str("tool", tool).Logger()}
}

// WithOperation returns a logger with operation context.
func (l *Logger) WithOperation(op string) *Logger {
	return &Logger{zl: l.zl.With().Str("operation", op).Logger()}
}

// WithContext returns a logger carrying the request trace ID, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		return &Logger{zl: l.zl.With().Str("trace_id", traceID).Logger()}
	}
	return l
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

type contextKey string

const traceIDKey contextKey = "trace_id"

// ContextWithTraceID adds a trace ID to the context.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext extracts a trace ID from the context.
func TraceIDFromContext(ctx context.Context) string {
	if v := ctx.Value(traceIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
