package loki

import (
	"maps"

	"go.uber.org/zap/zapcore"
)

// Core is a zapcore.Core that forwards entries to a Pusher.
type Core struct {
	zapcore.LevelEnabler

	pusher *Pusher
	fields map[string]any
}

// NewCore creates a Core writing to pusher.
func NewCore(enabler zapcore.LevelEnabler, pusher *Pusher) *Core {
	return &Core{LevelEnabler: enabler, pusher: pusher}
}

// With returns a Core carrying the extra fields.
func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := &Core{
		LevelEnabler: c.LevelEnabler,
		pusher:       c.pusher,
		fields:       encodeFields(c.fields, fields),
	}

	return clone
}

func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}

	return ce
}

func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	c.pusher.Add(line{
		Level:   ent.Level.String(),
		Time:    ent.Time.UnixMilli(),
		Message: ent.Message,
		Caller:  ent.Caller.TrimmedPath(),
		Stack:   ent.Stack,
		Fields:  encodeFields(c.fields, fields),
	})

	return nil
}

// Sync is a no-op; the pusher flushes on its own schedule.
func (c *Core) Sync() error {
	return nil
}

func encodeFields(base map[string]any, fields []zapcore.Field) map[string]any {
	enc := zapcore.NewMapObjectEncoder()
	for i := range fields {
		fields[i].AddTo(enc)
	}

	out := make(map[string]any, len(base)+len(enc.Fields))
	maps.Copy(out, base)
	maps.Copy(out, enc.Fields)

	return out
}
