// Package logger wraps go.uber.org/zap with the structured-field style the
// rest of the core uses, and tolerates a nil *Logger as a no-op so tests and
// library callers never have to wire logging just to run the engine.
package logger

import (
	"fmt"
	"strings"

	"backtestengine/internal/errs"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field holds a key-value pair to be written to a log entry.
type Field struct {
	Key   string
	Value any
}

// F is a short constructor for Field, used at call sites.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// Logger wraps a *zap.Logger. A nil *Logger is a valid no-op logger.
type Logger struct {
	z *zap.Logger
}

// Level mirrors zap's log levels without exposing zapcore to callers.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a production-configured Logger at the given level.
func New(level Level) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.EncoderConfig.MessageKey = "message"
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

// With returns a child logger with additional fields attached to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil || l.z == nil {
		return l
	}
	return &Logger{z: l.z.With(toZap(fields)...)}
}

func (l *Logger) Info(msg string, fields ...Field) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Info(msg, toZap(fields)...)
}

func (l *Logger) Debug(msg string, fields ...Field) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Debug(msg, toZap(fields)...)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	if l == nil || l.z == nil {
		return
	}
	l.z.Warn(msg, toZap(fields)...)
}

// Error logs err at error level, pulling out a stack trace when err carries
// one via the errs.StackTracer convention.
func (l *Logger) Error(err error, fields ...Field) {
	if l == nil || l.z == nil {
		return
	}
	zf := toZap(fields)
	stack := ""
	if st, ok := err.(errs.StackTracer); ok {
		stack = strings.TrimSpace(fmt.Sprintf("%+v", st.StackTrace()))
	}
	if ce := l.z.Check(zapcore.ErrorLevel, err.Error()); ce != nil {
		if stack != "" {
			ce.Stack = stack
		}
		ce.Write(zf...)
	}
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	return l.z.Sync()
}

func toZap(fields []Field) []zapcore.Field {
	out := make([]zapcore.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
