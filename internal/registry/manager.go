package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"jobreg/internal/cronexpr"
	"jobreg/internal/metrics"
	"jobreg/internal/storage"
	"jobreg/pkg/logx"
)

// Operation names used in logs, metrics and audit entries.
const (
	OpRegister = "register"
	OpPause    = "pause"
	OpResume   = "resume"
	OpRemove   = "remove"
	OpModify   = "modify"
)

const auditTimeout = 2 * time.Second

// Manager is the job lifecycle facade over a TriggerEngine.
// It is safe for concurrent use when the engine is.
type Manager struct {
	engine    TriggerEngine
	validator *cronexpr.Validator
	log       logx.Logger
	metrics   metrics.Sink
	audit     Auditor
	now       func() time.Time
}

func New(engine TriggerEngine, opts ...Option) *Manager {
	m := &Manager{engine: engine, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.log.IsZero() {
		m.log = logx.Nop()
	}
	m.log = m.log.With(logx.String("comp", "registry"))
	m.metrics = metrics.OrNoop(m.metrics)
	if m.validator == nil {
		m.validator = &cronexpr.Validator{Now: m.now}
	}
	return m
}

// Register binds spec.Work to a trigger firing on spec.Cron.
//
// When the trigger already exists the job detail is replaced and the trigger is
// rescheduled onto it, so repeated registration under the same identity is
// idempotent.
func (m *Manager) Register(spec JobSpec) (err error) {
	spec = spec.withDefaults()
	ref := Ref{Job: spec.Job, Trigger: spec.Trigger}
	start := m.now()
	defer func() { m.finish(OpRegister, ref, spec.Cron, start, err) }()

	if spec.Work == nil {
		return ErrNoWork
	}
	if err := m.checkCron(OpRegister, ref, spec.Cron); err != nil {
		return err
	}

	detail := JobDetail{Key: spec.Job, Job: spec.Work, Description: spec.Description, Durable: true}
	trig := Trigger{
		Key:            spec.Trigger,
		JobKey:         spec.Job,
		CronExpression: spec.Cron,
		Description:    spec.Description,
	}

	exists, cerr := m.engine.CheckExists(spec.Trigger)
	if cerr != nil {
		return m.engineFailure(OpRegister, "CheckExists", ref, spec.Cron, cerr)
	}
	if exists {
		if err := m.engine.AddJob(detail, true); err != nil {
			return m.engineFailure(OpRegister, "AddJob", ref, spec.Cron, err)
		}
		if err := m.engine.RescheduleJob(spec.Trigger, trig); err != nil {
			return m.engineFailure(OpRegister, "RescheduleJob", ref, spec.Cron, err)
		}
		m.log.Info("job re-registered",
			logx.String("job", spec.Job.String()),
			logx.String("trigger", spec.Trigger.String()),
			logx.String("cron", spec.Cron),
		)
		return nil
	}

	if err := m.engine.ScheduleJob(detail, trig); err != nil {
		return m.engineFailure(OpRegister, "ScheduleJob", ref, spec.Cron, err)
	}
	m.log.Info("job registered",
		logx.String("job", spec.Job.String()),
		logx.String("trigger", spec.Trigger.String()),
		logx.String("cron", spec.Cron),
	)
	return nil
}

// Pause stops the job from firing.
//
// The trigger is resumed before the job is paused so the trigger always enters
// the paused state from NORMAL.
func (m *Manager) Pause(ref Ref) (err error) {
	ref = ref.normalized()
	start := m.now()
	defer func() { m.finish(OpPause, ref, "", start, err) }()

	if err := m.engine.ResumeTrigger(ref.Trigger); err != nil {
		return m.engineFailure(OpPause, "ResumeTrigger", ref, "", err)
	}
	if err := m.engine.PauseJob(ref.Job); err != nil {
		return m.engineFailure(OpPause, "PauseJob", ref, "", err)
	}
	m.log.Info("job paused", logx.String("job", ref.Job.String()), logx.String("trigger", ref.Trigger.String()))
	return nil
}

// Resume replaces the trigger with a fresh one firing on cronExpr from now.
// Fires missed while paused are never replayed.
func (m *Manager) Resume(ref Ref, cronExpr string) (err error) {
	ref = ref.normalized()
	start := m.now()
	defer func() { m.finish(OpResume, ref, cronExpr, start, err) }()

	if err := m.checkCron(OpResume, ref, cronExpr); err != nil {
		return err
	}
	trig := Trigger{
		Key:            ref.Trigger,
		JobKey:         ref.Job,
		CronExpression: cronExpr,
		StartAt:        m.now(),
	}
	if err := m.engine.RescheduleJob(ref.Trigger, trig); err != nil {
		if errors.Is(err, ErrNotFound) {
			return m.notFound(OpResume, ref.Trigger)
		}
		return m.engineFailure(OpResume, "RescheduleJob", ref, cronExpr, err)
	}
	m.log.Info("job resumed",
		logx.String("job", ref.Job.String()),
		logx.String("trigger", ref.Trigger.String()),
		logx.String("cron", cronExpr),
	)
	return nil
}

// Remove pauses the trigger, deletes the job and unschedules the trigger.
//
// It returns the unschedule result. Engine errors are logged and reported as
// false; steps already applied are not rolled back.
func (m *Manager) Remove(ref Ref) bool {
	ref = ref.normalized()
	start := m.now()

	fail := func(call string, err error) bool {
		m.finish(OpRemove, ref, "", start, m.engineFailure(OpRemove, call, ref, "", err))
		return false
	}

	if err := m.engine.PauseTrigger(ref.Trigger); err != nil {
		return fail("PauseTrigger", err)
	}
	if _, err := m.engine.DeleteJob(ref.Job); err != nil {
		return fail("DeleteJob", err)
	}
	ok, err := m.engine.UnscheduleJob(ref.Trigger)
	if err != nil {
		return fail("UnscheduleJob", err)
	}

	if ok {
		m.log.Info("job removed", logx.String("job", ref.Job.String()), logx.String("trigger", ref.Trigger.String()))
		m.finish(OpRemove, ref, "", start, nil)
	} else {
		m.log.Info("remove: trigger was not scheduled", logx.String("trigger", ref.Trigger.String()))
		m.finish(OpRemove, ref, "", start, &NotFoundError{Trigger: ref.Trigger})
	}
	return ok
}

// Modify changes the cron expression of an existing trigger.
//
// It is a no-op when the current expression equals cronExpr ignoring case.
// Otherwise the trigger is replaced with one starting now, bound to the same job.
func (m *Manager) Modify(key TriggerKey, cronExpr string) (err error) {
	key = key.normalized()
	ref := Ref{Trigger: key}
	start := m.now()
	defer func() { m.finish(OpModify, ref, cronExpr, start, err) }()

	if err := m.checkCron(OpModify, ref, cronExpr); err != nil {
		return err
	}

	cur, gerr := m.engine.GetTrigger(key)
	if gerr != nil {
		return m.engineFailure(OpModify, "GetTrigger", ref, cronExpr, gerr)
	}
	if cur == nil {
		return m.notFound(OpModify, key)
	}
	ref.Job = cur.JobKey

	if strings.EqualFold(cur.CronExpression, cronExpr) {
		m.log.Debug("modify: expression unchanged",
			logx.String("trigger", key.String()),
			logx.String("cron", cronExpr),
		)
		return nil
	}

	repl := Trigger{
		Key:            key,
		JobKey:         cur.JobKey,
		CronExpression: cronExpr,
		StartAt:        m.now(),
		Description:    cur.Description,
	}
	if err := m.engine.RescheduleJob(key, repl); err != nil {
		if errors.Is(err, ErrNotFound) {
			return m.notFound(OpModify, key)
		}
		return m.engineFailure(OpModify, "RescheduleJob", ref, cronExpr, err)
	}
	m.log.Info("trigger modified",
		logx.String("job", cur.JobKey.String()),
		logx.String("trigger", key.String()),
		logx.String("from", cur.CronExpression),
		logx.String("cron", cronExpr),
	)
	return nil
}

// Describe returns the trigger stored under key with its next fire time.
func (m *Manager) Describe(key TriggerKey) (Binding, error) {
	key = key.normalized()
	cur, err := m.engine.GetTrigger(key)
	if err != nil {
		return Binding{}, m.engineFailure("describe", "GetTrigger", Ref{Trigger: key}, "", err)
	}
	if cur == nil {
		return Binding{}, &NotFoundError{Trigger: key}
	}
	b := Binding{Trigger: *cur}
	if sr, ok := m.engine.(StateReporter); ok {
		if st, err := sr.TriggerState(key); err == nil {
			b.State = st
		}
	}
	if next, err := m.validator.FirstFireTime(cur.CronExpression); err == nil {
		b.Next = next
	}
	return b, nil
}

// Valid reports whether cronExpr would be accepted by the mutating operations.
func (m *Manager) Valid(cronExpr string) bool {
	return m.validator.Valid(cronExpr)
}

func (m *Manager) checkCron(op string, ref Ref, expr string) error {
	if err := m.validator.Check(expr); err != nil {
		m.log.Info("cron expression rejected",
			logx.String("op", op),
			logx.String("job", ref.Job.String()),
			logx.String("trigger", ref.Trigger.String()),
			logx.String("cron", expr),
			logx.Err(err),
		)
		return &InvalidScheduleError{Expr: expr, Err: err}
	}
	return nil
}

func (m *Manager) notFound(op string, key TriggerKey) error {
	m.log.Info("trigger not found", logx.String("op", op), logx.String("trigger", key.String()))
	return &NotFoundError{Trigger: key}
}

func (m *Manager) engineFailure(op, call string, ref Ref, cronExpr string, err error) error {
	m.log.Error("engine call failed",
		logx.String("op", op),
		logx.String("call", call),
		logx.String("job", ref.Job.String()),
		logx.String("trigger", ref.Trigger.String()),
		logx.String("cron", cronExpr),
		logx.Err(err),
	)
	return &EngineError{Op: op, Call: call, Job: ref.Job, Trigger: ref.Trigger, Cron: cronExpr, Err: err}
}

// finish records metrics and the audit entry for one operation.
func (m *Manager) finish(op string, ref Ref, cronExpr string, start time.Time, err error) {
	took := m.now().Sub(start)
	if took < 0 {
		took = 0
	}
	m.metrics.OperationCompleted(op, outcomeOf(err), took)

	if m.audit == nil {
		return
	}
	e := storage.AuditEntry{
		At:     start,
		Op:     op,
		Cron:   cronExpr,
		OK:     err == nil,
		TookMS: took.Milliseconds(),
	}
	if ref.Job.Name != "" {
		e.Job = ref.Job.String()
	}
	if ref.Trigger.Name != "" {
		e.Trigger = ref.Trigger.String()
	}
	if err != nil {
		e.Error = err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if aerr := m.audit.AppendAudit(ctx, e); aerr != nil {
		m.log.Warn("audit append failed", logx.String("op", op), logx.Err(aerr))
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrInvalidSchedule), errors.Is(err, ErrNoWork):
		return metrics.OutcomeInvalid
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrEngine):
		return metrics.OutcomeEngineError
	default:
		return metrics.OutcomeFailed
	}
}
