package telemetry

import (
	"fmt"
	"strings"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap/zapcore"
)

// SentryCore is a zapcore.Core that reports error entries to Sentry.
type SentryCore struct {
	zapcore.LevelEnabler

	extras map[string]any
}

// NewSentryCore creates a new Core that forwards errors to Sentry.
func NewSentryCore(enab zapcore.LevelEnabler) *SentryCore {
	return &SentryCore{LevelEnabler: enab}
}

// With keeps logger-scoped fields as Sentry extras.
func (c *SentryCore) With(fields []zapcore.Field) zapcore.Core {
	enc := zapcore.NewMapObjectEncoder()
	for k, v := range c.extras {
		enc.Fields[k] = v
	}

	for i := range fields {
		fields[i].AddTo(enc)
	}

	return &SentryCore{LevelEnabler: c.LevelEnabler, extras: enc.Fields}
}

func (c *SentryCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

// Write captures the entry as a Sentry exception event.
func (c *SentryCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	if ent.Level < zapcore.ErrorLevel || sentry.CurrentHub().Client() == nil {
		return nil
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		enc := zapcore.NewMapObjectEncoder()

		var errs []string

		for i := range fields {
			if fields[i].Type == zapcore.ErrorType {
				if err, ok := fields[i].Interface.(error); ok {
					errs = append(errs, err.Error())
					continue
				}
			}

			fields[i].AddTo(enc)
		}

		for k, v := range c.extras {
			scope.SetExtra(k, v)
		}

		for k, v := range enc.Fields {
			scope.SetExtra(k, v)
		}

		level := sentry.LevelError
		if ent.Level > zapcore.ErrorLevel {
			level = sentry.LevelFatal
		}

		scope.SetLevel(level)

		value := ent.Message
		if len(errs) > 0 {
			value = fmt.Sprintf("%s: %s", ent.Message, strings.Join(errs, "; "))
		}

		pkg, fn := splitFunction(ent.Caller.Function)

		event := sentry.NewEvent()
		event.Level = level
		event.Message = ent.Message
		event.Exception = []sentry.Exception{{
			Value:      value,
			Type:       fn,
			Module:     pkg,
			Stacktrace: sentry.NewStacktrace(),
		}}

		sentry.CaptureEvent(event)
	})

	return nil
}

func (c *SentryCore) Sync() error {
	return nil
}

// splitFunction splits "path/to/pkg.Func" into its package path and function name.
func splitFunction(full string) (string, string) {
	if full == "" {
		return "", ""
	}

	pkg := ""
	if slash := strings.LastIndexByte(full, '/'); slash > -1 {
		pkg = full[:slash]
	}

	if dot := strings.LastIndexByte(full, '.'); dot > -1 {
		return pkg, full[dot+1:]
	}

	return pkg, full
}
