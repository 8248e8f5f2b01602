package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"jobreg/internal/eventbus"
	"jobreg/internal/metrics"
	"jobreg/internal/registry"
	"jobreg/pkg/logx"
)

const skipWarnEvery = 5 * time.Second

// fire runs the job bound to key. gen must match the trigger's current entry.
func (s *Service) fire(key registry.TriggerKey, gen uint64) {
	s.mu.Lock()
	td, ok := s.triggers[key]
	if !ok || td.gen != gen || td.state != registry.StateNormal {
		s.mu.Unlock()
		return
	}
	trig := td.trig
	detail, hasJob := s.jobs[trig.JobKey]
	timeout := s.cfg.DefaultTimeout
	base := s.runCtx
	s.mu.Unlock()

	if !hasJob {
		s.reportSkip(trig, metrics.SkipJobMissing)
		return
	}
	if base == nil {
		base = context.Background()
	}
	if err := base.Err(); err != nil {
		s.reportSkip(trig, metrics.SkipStopped)
		return
	}
	if tj, ok := detail.Job.(TimeoutJob); ok && tj.Timeout() > 0 {
		timeout = tj.Timeout()
	}
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}

	fireID := uuid.NewString()
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	start := s.now()
	ctx = registry.ContextWithFire(ctx, registry.FireInfo{
		ID:          fireID,
		Job:         trig.JobKey,
		Trigger:     trig.Key,
		Cron:        trig.CronExpression,
		ScheduledAt: start,
	})
	err := runJob(ctx, detail.Job)
	took := s.now().Sub(start)

	data := eventbus.FireData{
		FireID:      fireID,
		Job:         trig.JobKey.String(),
		Trigger:     trig.Key.String(),
		Cron:        trig.CronExpression,
		ScheduledAt: start,
		DurationMS:  took.Milliseconds(),
	}
	fields := []logx.Field{
		logx.String("fire_id", fireID),
		logx.String("trigger", data.Trigger),
		logx.String("job", data.Job),
		logx.Duration("took", took),
	}
	if err != nil {
		data.Error = err.Error()
		s.metrics.TriggerFired(metrics.OutcomeFailed, took)
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeTriggerFailed, Time: start, Data: data})
		s.log.Warn("job failed", append(fields, logx.String("cron", trig.CronExpression), logx.Err(err))...)
		return
	}
	s.metrics.TriggerFired(metrics.OutcomeOK, took)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeTriggerFired, Time: start, Data: data})
	s.log.Debug("job done", fields...)
}

// runJob converts a panicking job into an error so the fire is still recorded.
func runJob(ctx context.Context, job registry.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return job.Execute(ctx)
}

func (s *Service) reportSkip(trig registry.Trigger, reason string) {
	s.metrics.FireSkipped(reason)
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeTriggerSkipped, Time: s.now(), Data: eventbus.FireData{
		Job:     trig.JobKey.String(),
		Trigger: trig.Key.String(),
		Cron:    trig.CronExpression,
		Reason:  reason,
	}})

	fields := []logx.Field{
		logx.String("trigger", trig.Key.String()),
		logx.String("job", trig.JobKey.String()),
		logx.String("reason", reason),
	}
	if reason == metrics.SkipOverlap || !s.skipLimiter(trig.Key).Allow() {
		s.log.Debug("trigger fire skipped", fields...)
		return
	}
	s.log.Warn("trigger fire skipped", fields...)
}

func (s *Service) skipLimiter(key registry.TriggerKey) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()
	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Every(skipWarnEvery), 1)
		s.limiters[key] = l
	}
	return l
}

// cronLogger adapts logx to cron.Logger for one trigger's job chain.
// SkipIfStillRunning reports overlaps through Info("skip").
type cronLogger struct {
	svc *Service
	key registry.TriggerKey
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		l.svc.mu.Lock()
		td, ok := l.svc.triggers[l.key]
		var trig registry.Trigger
		if ok {
			trig = td.trig
		}
		l.svc.mu.Unlock()
		if !ok {
			trig = registry.Trigger{Key: l.key}
		}
		l.svc.reportSkip(trig, metrics.SkipOverlap)
		return
	}
	l.svc.log.Debug("cron: "+msg, logx.String("trigger", l.key.String()), logx.Any("kv", keysAndValues))
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.svc.log.Error("cron: "+msg,
		logx.String("trigger", l.key.String()),
		logx.Any("kv", keysAndValues),
		logx.Err(err),
	)
}
