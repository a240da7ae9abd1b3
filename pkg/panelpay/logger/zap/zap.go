// Package zap adapts go.uber.org/zap to panelpay.Logger.
package zap

import (
	"go.uber.org/zap"

	"github.com/mcpanel/panelpay/pkg/panelpay"
)

// Logger implements panelpay.Logger using zap.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a new zap logger adapter.
func NewLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

func (l *Logger) Debug(msg string, fields ...panelpay.Field) {
	l.logger.Debug(msg, toZap(fields)...)
}

func (l *Logger) Info(msg string, fields ...panelpay.Field) {
	l.logger.Info(msg, toZap(fields)...)
}

func (l *Logger) Warn(msg string, fields ...panelpay.Field) {
	l.logger.Warn(msg, toZap(fields)...)
}

func (l *Logger) Error(msg string, fields ...panelpay.Field) {
	l.logger.Error(msg, toZap(fields)...)
}

func toZap(fields []panelpay.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
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
