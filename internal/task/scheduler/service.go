package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"jobreg/internal/eventbus"
	"jobreg/internal/metrics"
	"jobreg/internal/registry"
	"jobreg/pkg/logx"
)

var _ registry.TriggerEngine = (*Service)(nil)
var _ registry.StateReporter = (*Service)(nil)

func New(cfg Config, log logx.Logger, bus eventbus.Bus, sink metrics.Sink) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Service{
		cfg:      cfg,
		log:      log.With(logx.String("comp", "scheduler")),
		bus:      bus,
		metrics:  metrics.OrNoop(sink),
		now:      time.Now,
		jobs:     map[registry.JobKey]registry.JobDetail{},
		triggers: map[registry.TriggerKey]*triggerDef{},
		limiters: map[registry.TriggerKey]*rate.Limiter{},
	}
}

// Running reports whether Start has been called without a matching Stop.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// Location returns the time zone used for expressions without a TZ prefix.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc == nil {
		return s.loadLocationLocked()
	}
	return s.loc
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c == nil {
		return
	}
	if oldTZ != newTZ {
		s.restartLocked()
	}
}

// Start begins firing triggers. Fires receive contexts derived from ctx.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.cancelRun = context.WithCancel(ctx)
	s.startCronLocked()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("triggers", len(s.triggers)))
}

// Stop stops firing and waits for running jobs until ctx is done, then
// cancels whatever is still running. Jobs and triggers are kept.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.log.Info("stop requested")

	s.mu.Lock()
	c := s.c
	cancel := s.cancelRun
	s.c = nil
	for _, td := range s.triggers {
		td.entryID = 0
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			s.log.Warn("stop deadline reached; cancelling running jobs")
		}
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) startCronLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithLocation(s.loc), cron.WithLogger(cron.PrintfLogger(s.log)))
	for key, td := range s.triggers {
		if err := s.reparseLocked(td); err != nil {
			s.log.Error("trigger not restored", logx.String("trigger", key.String()), logx.Err(err))
			continue
		}
		if td.state == registry.StateNormal {
			s.addEntryLocked(td)
		}
	}
	s.c.Start()
}

// restartLocked swaps in a new cron for a new time zone. It does not wait for
// running jobs: they may need s.mu to finish.
func (s *Service) restartLocked() {
	old := s.c
	s.startCronLocked()
	if old != nil {
		old.Stop()
	}
	s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("triggers", len(s.triggers)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
