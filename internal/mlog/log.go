// Package mlog provides the logger abstraction propagated through context,
// generalized from the teacher's common/mlog package.
package mlog

import (
	"context"

	"go.uber.org/zap"
)

// Logger is the logging surface every internal package depends on instead
// of a concrete backend.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Debug(args ...any)
	Debugf(format string, args ...any)
	WithFields(fields ...any) Logger
	Sync() error
}

// ZapLogger backs Logger with a *zap.SugaredLogger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a production zap.Logger and wraps it.
func NewZapLogger() (*ZapLogger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{sugar: z.Sugar()}, nil
}

func (l *ZapLogger) Info(args ...any)                 { l.sugar.Info(args...) }
func (l *ZapLogger) Infof(format string, args ...any) { l.sugar.Infof(format, args...) }
func (l *ZapLogger) Warn(args ...any)                 { l.sugar.Warn(args...) }
func (l *ZapLogger) Warnf(format string, args ...any) { l.sugar.Warnf(format, args...) }
func (l *ZapLogger) Error(args ...any)                { l.sugar.Error(args...) }
func (l *ZapLogger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }
func (l *ZapLogger) Debug(args ...any)                 { l.sugar.Debug(args...) }
func (l *ZapLogger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }

func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{sugar: l.sugar.With(fields...)}
}

func (l *ZapLogger) Sync() error { return l.sugar.Sync() }

// NoneLogger discards everything; it is the default when no logger has
// been installed in context.
type NoneLogger struct{}

func (n *NoneLogger) Info(args ...any)                  {}
func (n *NoneLogger) Infof(format string, args ...any)  {}
func (n *NoneLogger) Warn(args ...any)                  {}
func (n *NoneLogger) Warnf(format string, args ...any)  {}
func (n *NoneLogger) Error(args ...any)                 {}
func (n *NoneLogger) Errorf(format string, args ...any) {}
func (n *NoneLogger) Debug(args ...any)                 {}
func (n *NoneLogger) Debugf(format string, args ...any) {}
func (n *NoneLogger) WithFields(fields ...any) Logger   { return n }
func (n *NoneLogger) Sync() error                       { return nil }

type loggerContextKey string

const loggerKey loggerContextKey = "summa_logger"

// ContextWithLogger installs logger into ctx.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the installed Logger, or NoneLogger if absent.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok && l != nil {
		return l
	}
	return &NoneLogger{}
}
