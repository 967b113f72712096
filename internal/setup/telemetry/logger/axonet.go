package logger

import (
	"github.com/jaxron/axonet/pkg/client/logger"
	"go.uber.org/zap"
)

// HTTPLogger adapts zap.Logger to the axonet logger.Logger interface
// so remote HTTP clients log through the service loggers.
type HTTPLogger struct {
	zap *zap.Logger
}

// New wraps zapLogger for use by axonet clients and middlewares.
func New(zapLogger *zap.Logger) logger.Logger {
	return &HTTPLogger{zap: zapLogger}
}

func (l *HTTPLogger) Debug(msg string)                  { l.zap.Debug(msg) }
func (l *HTTPLogger) Info(msg string)                   { l.zap.Info(msg) }
func (l *HTTPLogger) Warn(msg string)                   { l.zap.Warn(msg) }
func (l *HTTPLogger) Error(msg string)                  { l.zap.Error(msg) }
func (l *HTTPLogger) Debugf(format string, args ...any) { l.zap.Sugar().Debugf(format, args...) }
func (l *HTTPLogger) Infof(format string, args ...any)  { l.zap.Sugar().Infof(format, args...) }
func (l *HTTPLogger) Warnf(format string, args ...any)  { l.zap.Sugar().Warnf(format, args...) }
func (l *HTTPLogger) Errorf(format string, args ...any) { l.zap.Sugar().Errorf(format, args...) }

// WithFields returns a logger carrying fields as zap fields.
func (l *HTTPLogger) WithFields(fields ...logger.Field) logger.Logger {
	zapFields := make([]zap.Field, len(fields))
	for i, f := range fields {
		zapFields[i] = zap.Any(f.Key, f.Value)
	}

	return &HTTPLogger{zap: l.zap.With(zapFields...)}
}
