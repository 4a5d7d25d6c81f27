// Package logger provides structured logging utilities.
package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// Format selects the log encoding.
type Format string

const (
	// FormatJSON writes one JSON object per line. The API server default.
	FormatJSON Format = "json"
	// FormatConsole writes aligned, human readable lines. Used by the CLI.
	FormatConsole Format = "console"
)

// Option adjusts how a logger is built.
type Option func(*zap.Config)

// WithFormat sets the encoding. Unknown formats fall back to JSON.
func WithFormat(f Format) Option {
	return func(c *zap.Config) {
		if f != FormatConsole {
			c.Encoding = string(FormatJSON)
			return
		}
		c.Encoding = string(FormatConsole)
		c.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		c.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		c.EncoderConfig.CallerKey = zapcore.OmitKey
	}
}

// WithOutput replaces the output sinks, e.g. "stderr" for commands whose
// stdout carries program output.
func WithOutput(paths ...string) Option {
	return func(c *zap.Config) {
		c.OutputPaths = paths
	}
}

// WithSampling keeps the first n entries per message each second and every
// thereafter-th one after that.
func WithSampling(first, thereafter int) Option {
	return func(c *zap.Config) {
		c.Sampling = &zap.SamplingConfig{Initial: first, Thereafter: thereafter}
	}
}

// New creates a logger at level. Without options it writes JSON to stdout.
func New(level string, opts ...Option) (*Logger, error) {
	config := zap.Config{
		Level:    zap.NewAtomicLevelAt(ParseLevel(level)),
		Encoding: string(FormatJSON),
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	for _, opt := range opts {
		opt(&config)
	}

	zl, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: zl}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// WithThread scopes a child logger to a conversation thread.
func (l *Logger) WithThread(threadID string) *Logger {
	return l.With(zap.String("thread_id", threadID))
}

// WithRequest creates a child logger with request context fields.
func (l *Logger) WithRequest(correlationID, userID string) *Logger {
	return l.With(
		zap.String("correlation_id", correlationID),
		zap.String("user_id", userID),
	)
}

// ParseLevel maps a level name to a zap level. Unknown names mean info.
func ParseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "warning":
		return zapcore.WarnLevel
	default:
		if err := lvl.UnmarshalText([]byte(l)); err != nil {
			return zapcore.InfoLevel
		}
		return lvl
	}
}
