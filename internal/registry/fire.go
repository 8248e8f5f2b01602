package registry

import (
	"context"
	"time"
)

// FireInfo describes the trigger fire a job is executing for.
type FireInfo struct {
	ID          string
	Job         JobKey
	Trigger     TriggerKey
	Cron        string
	ScheduledAt time.Time
}

type fireKey struct{}

// ContextWithFire attaches fire metadata for the job being executed.
func ContextWithFire(ctx context.Context, fi FireInfo) context.Context {
	return context.WithValue(ctx, fireKey{}, fi)
}

// FireFromContext returns the fire metadata set by the engine, if any.
func FireFromContext(ctx context.Context) (FireInfo, bool) {
	fi, ok := ctx.Value(fireKey{}).(FireInfo)
	return fi, ok
}
