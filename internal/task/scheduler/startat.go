package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// startAtSchedule holds back a base schedule until start.
// The first fire is the first base match at or after start.
type startAtSchedule struct {
	base  cron.Schedule
	start time.Time
}

func (s *startAtSchedule) Next(t time.Time) time.Time {
	if !s.start.IsZero() && t.Before(s.start) {
		t = s.start.Add(-time.Nanosecond)
	}
	return s.base.Next(t)
}

func withStartAt(base cron.Schedule, start time.Time) cron.Schedule {
	if start.IsZero() {
		return base
	}
	return &startAtSchedule{base: base, start: start}
}
