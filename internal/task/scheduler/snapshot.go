package scheduler

import (
	"sort"
	"time"

	"jobreg/internal/registry"
)

// Snapshot reports every trigger with its state and fire times.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	snap := Snapshot{
		Running:        s.c != nil,
		Timezone:       loc.String(),
		DefaultTimeout: s.cfg.DefaultTimeout,
		Jobs:           len(s.jobs),
		Triggers:       make([]TriggerInfo, 0, len(s.triggers)),
	}
	if snap.DefaultTimeout <= 0 {
		snap.DefaultTimeout = defaultJobTimeout
	}

	now := s.now()
	for _, td := range s.triggers {
		_, hasJob := s.jobs[td.trig.JobKey]
		it := TriggerInfo{
			Trigger:     td.trig.Key.String(),
			Job:         td.trig.JobKey.String(),
			Cron:        td.trig.CronExpression,
			Description: td.trig.Description,
			State:       td.state,
			JobPresent:  hasJob,
			StartAt:     td.trig.StartAt,
		}
		if td.state == registry.StateNormal {
			if s.c != nil && td.entryID != 0 {
				e := s.c.Entry(td.entryID)
				it.Next, it.Prev = e.Next, e.Prev
			}
			if it.Next.IsZero() && td.sched != nil {
				it.Next = td.sched.Next(now.In(loc))
			}
		}
		snap.Triggers = append(snap.Triggers, it)
	}
	sort.Slice(snap.Triggers, func(i, j int) bool { return snap.Triggers[i].Trigger < snap.Triggers[j].Trigger })
	return snap
}

// NextFire returns the next fire time of a NORMAL trigger, or zero.
func (s *Service) NextFire(key registry.TriggerKey) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	td, ok := s.triggers[key]
	if !ok || td.state != registry.StateNormal {
		return time.Time{}
	}
	if s.c != nil && td.entryID != 0 {
		if e := s.c.Entry(td.entryID); !e.Next.IsZero() {
			return e.Next
		}
	}
	return td.sched.Next(s.now())
}
