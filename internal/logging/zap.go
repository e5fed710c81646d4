package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// ZapLogger adapts a *zap.Logger to Logger.
type ZapLogger struct {
	l *zap.Logger
}

// NewZapLogger builds a production zap logger named after component.
func NewZapLogger(component string) (*ZapLogger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	if component != "" {
		l = l.Named(component)
	}
	return &ZapLogger{l: l}, nil
}

// WrapZap wraps an existing zap logger, e.g. zap.NewNop() in tests.
func WrapZap(l *zap.Logger) *ZapLogger {
	return &ZapLogger{l: l}
}

func zapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

func (z *ZapLogger) Debug(msg string, fields ...Field) { z.l.Debug(msg, zapFields(fields)...) }
func (z *ZapLogger) Info(msg string, fields ...Field)  { z.l.Info(msg, zapFields(fields)...) }
func (z *ZapLogger) Warn(msg string, fields ...Field)  { z.l.Warn(msg, zapFields(fields)...) }
func (z *ZapLogger) Error(msg string, fields ...Field) { z.l.Error(msg, zapFields(fields)...) }

func (z *ZapLogger) With(fields ...Field) Logger {
	l := z.l
	rest := make([]Field, 0, len(fields))
	for _, f := range fields {
		if str, ok := f.Value.(string); ok && f.Key == "component" {
			l = l.Named(str)
			continue
		}
		rest = append(rest, f)
	}
	return &ZapLogger{l: l.With(zapFields(rest)...)}
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.l.Sync()
}

// New picks a backend by format: "zap" for zap production JSON, anything
// else for the stdout JSON logger.
func New(format, component string) (Logger, error) {
	switch format {
	case "zap":
		return NewZapLogger(component)
	default:
		return NewStdoutLogger(component), nil
	}
}
