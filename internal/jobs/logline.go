package jobs

import (
	"context"

	"jobreg/internal/registry"
	"jobreg/pkg/logx"
)

// LogLine writes Message at info level on every fire.
type LogLine struct {
	Message string
	Log     logx.Logger
}

func (l *LogLine) Execute(ctx context.Context) error {
	fields := []logx.Field{}
	if fi, ok := registry.FireFromContext(ctx); ok {
		fields = append(fields,
			logx.String("fire_id", fi.ID),
			logx.String("job", fi.Job.String()),
			logx.Time("scheduled_at", fi.ScheduledAt),
		)
	}
	l.Log.Info(l.Message, fields...)
	return nil
}
