package log

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ZapLogger adapts a zap.SugaredLogger to the Logger interface. Used when the
// crawler runs unattended and structured output matters more than readability.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

func NewZapLogger() (*ZapLogger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return &ZapLogger{sugar: logger.Sugar()}, nil
}

func (l *ZapLogger) Info(ctx context.Context, format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *ZapLogger) Error(ctx context.Context, format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *ZapLogger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *ZapLogger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Sync flushes buffered log entries. Call before process exit.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}
