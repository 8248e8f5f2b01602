package scheduler

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"jobreg/internal/cronexpr"
	"jobreg/internal/registry"
	"jobreg/pkg/logx"
)

func (s *Service) CheckExists(key registry.TriggerKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.triggers[key]
	return ok, nil
}

// ScheduleJob stores job and trigger together. It fails if either already exists.
func (s *Service) ScheduleJob(job registry.JobDetail, trig registry.Trigger) error {
	if job.Job == nil {
		return registry.ErrNoWork
	}
	if trig.JobKey == (registry.JobKey{}) {
		trig.JobKey = job.Key
	}
	if trig.JobKey != job.Key {
		return fmt.Errorf("trigger %s targets job %s, not %s", trig.Key, trig.JobKey, job.Key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.triggers[trig.Key]; ok {
		return fmt.Errorf("%w: %s", ErrTriggerExists, trig.Key)
	}
	if _, ok := s.jobs[job.Key]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Key)
	}
	td, err := s.newTriggerLocked(trig)
	if err != nil {
		return err
	}
	s.jobs[job.Key] = job
	s.triggers[trig.Key] = td
	s.addEntryLocked(td)
	s.triggersChangedLocked()
	s.log.Debug("trigger scheduled", s.triggerFieldsLocked(td)...)
	return nil
}

func (s *Service) AddJob(job registry.JobDetail, replace bool) error {
	if job.Job == nil {
		return registry.ErrNoWork
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Key]; ok && !replace {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Key)
	}
	s.jobs[job.Key] = job
	s.log.Debug("job stored", logx.String("job", job.Key.String()), logx.Bool("replace", replace))
	return nil
}

// RescheduleJob replaces the trigger under key. The replacement starts NORMAL.
func (s *Service) RescheduleJob(key registry.TriggerKey, trig registry.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.triggers[key]
	if !ok {
		return fmt.Errorf("reschedule %s: %w", key, registry.ErrNotFound)
	}
	trig.Key = key
	if trig.JobKey == (registry.JobKey{}) {
		trig.JobKey = old.trig.JobKey
	}
	td, err := s.newTriggerLocked(trig)
	if err != nil {
		return err
	}
	s.removeEntryLocked(old)
	s.triggers[key] = td
	s.addEntryLocked(td)
	s.log.Debug("trigger rescheduled", s.triggerFieldsLocked(td)...)
	return nil
}

// PauseTrigger is a no-op for unknown or already paused triggers.
func (s *Service) PauseTrigger(key registry.TriggerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if td, ok := s.triggers[key]; ok {
		s.pauseLocked(td)
	}
	return nil
}

// ResumeTrigger returns a paused trigger to NORMAL. Its next fire is computed
// from now.
func (s *Service) ResumeTrigger(key registry.TriggerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	td, ok := s.triggers[key]
	if !ok || td.state != registry.StatePaused {
		return nil
	}
	td.state = registry.StateNormal
	s.addEntryLocked(td)
	s.log.Debug("trigger resumed", logx.String("trigger", key.String()))
	return nil
}

// PauseJob pauses every trigger bound to the job.
func (s *Service) PauseJob(key registry.JobKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, td := range s.triggers {
		if td.trig.JobKey == key {
			s.pauseLocked(td)
		}
	}
	return nil
}

// DeleteJob removes the job detail only. Triggers bound to it stay until
// unscheduled; their fires are skipped.
func (s *Service) DeleteJob(key registry.JobKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	delete(s.jobs, key)
	if ok {
		s.log.Debug("job deleted", logx.String("job", key.String()))
	}
	return ok, nil
}

func (s *Service) UnscheduleJob(key registry.TriggerKey) (bool, error) {
	s.mu.Lock()
	td, ok := s.triggers[key]
	if ok {
		s.removeEntryLocked(td)
		delete(s.triggers, key)
		s.triggersChangedLocked()
	}
	s.mu.Unlock()

	if ok {
		s.limMu.Lock()
		delete(s.limiters, key)
		s.limMu.Unlock()
		s.log.Debug("trigger unscheduled", logx.String("trigger", key.String()))
	}
	return ok, nil
}

func (s *Service) GetTrigger(key registry.TriggerKey) (*registry.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	td, ok := s.triggers[key]
	if !ok {
		return nil, nil
	}
	t := td.trig
	return &t, nil
}

func (s *Service) TriggerState(key registry.TriggerKey) (registry.TriggerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	td, ok := s.triggers[key]
	if !ok {
		return registry.StateUnknown, nil
	}
	return td.state, nil
}

func (s *Service) newTriggerLocked(trig registry.Trigger) (*triggerDef, error) {
	td := &triggerDef{trig: trig, state: registry.StateNormal}
	if err := s.reparseLocked(td); err != nil {
		return nil, err
	}
	return td, nil
}

// reparseLocked (re)builds the schedule in the current location.
func (s *Service) reparseLocked(td *triggerDef) error {
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	base, err := cronexpr.ParseIn(td.trig.CronExpression, loc)
	if err != nil {
		return fmt.Errorf("trigger %s: %w", td.trig.Key, err)
	}
	td.sched = withStartAt(base, td.trig.StartAt)
	return nil
}

func (s *Service) pauseLocked(td *triggerDef) {
	if td.state == registry.StatePaused {
		return
	}
	td.state = registry.StatePaused
	s.removeEntryLocked(td)
	s.log.Debug("trigger paused", logx.String("trigger", td.trig.Key.String()))
}

// addEntryLocked registers td with the running cron. Before Start, only the
// definition is kept.
func (s *Service) addEntryLocked(td *triggerDef) {
	s.gen++
	td.gen = s.gen
	if s.c == nil {
		return
	}
	key, gen := td.trig.Key, td.gen
	logger := &cronLogger{svc: s, key: key}
	job := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { s.fire(key, gen) }))
	td.entryID = s.c.Schedule(td.sched, job)
}

func (s *Service) removeEntryLocked(td *triggerDef) {
	if s.c != nil && td.entryID != 0 {
		s.c.Remove(td.entryID)
	}
	td.entryID = 0
	s.gen++
	td.gen = s.gen
}

func (s *Service) triggersChangedLocked() {
	s.metrics.TriggersScheduled(len(s.triggers))
}

func (s *Service) triggerFieldsLocked(td *triggerDef) []logx.Field {
	fields := []logx.Field{
		logx.String("trigger", td.trig.Key.String()),
		logx.String("job", td.trig.JobKey.String()),
		logx.String("cron", td.trig.CronExpression),
	}
	if s.log.Enabled(logx.LevelDebug) {
		loc := s.loc
		if loc == nil {
			loc = s.loadLocationLocked()
		}
		next := cronexpr.NextN(td.sched, s.now().In(loc), 3)
		parts := make([]string, 0, len(next))
		for _, t := range next {
			parts = append(parts, t.Format("2006-01-02 15:04:05"))
		}
		if len(parts) > 0 {
			fields = append(fields, logx.String("next", strings.Join(parts, ", ")))
		}
	}
	return fields
}
