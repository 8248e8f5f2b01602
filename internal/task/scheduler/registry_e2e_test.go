package scheduler

import (
	"context"
	"testing"
	"time"

	"jobreg/internal/cronexpr"
	"jobreg/internal/eventbus"
	"jobreg/internal/registry"
	"jobreg/pkg/logx"
)

func newManager(s *Service) *registry.Manager {
	return registry.New(s,
		registry.WithLogger(logx.Nop()),
		registry.WithValidator(&cronexpr.Validator{Location: time.UTC}),
	)
}

func TestReportJobLifecycleOnEngine(t *testing.T) {
	t.Parallel()
	s, _ := newTestService(t)
	s.Start(context.Background())
	m := newManager(s)
	key := registry.TriggerKey{Name: "reportJob", Group: "g1"}
	ref := registry.RefFor("reportJob", "g1")

	err := m.Register(registry.JobSpec{
		Job:     registry.JobKey{Name: "reportJob", Group: "g1"},
		Trigger: key,
		Cron:    "0 0 12 * * ?",
		Work:    registry.JobFunc(func(context.Context) error { return nil }),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ok, _ := s.CheckExists(key); !ok {
		t.Fatal("trigger missing")
	}

	if err := m.Modify(key, "0 0 13 * * ?"); err != nil {
		t.Fatalf("Modify: %v", err)
	}
	b, err := m.Describe(key)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if b.Trigger.CronExpression != "0 0 13 * * ?" || b.Next.UTC().Hour() != 13 || b.State != registry.StateNormal {
		t.Fatalf("binding = %+v", b)
	}
	gen := currentGen(s, key)
	if err := m.Modify(key, "0 0 13 * * ?"); err != nil {
		t.Fatalf("repeat Modify: %v", err)
	}
	if currentGen(s, key) != gen {
		t.Fatal("repeat Modify replaced the trigger")
	}

	if err := m.Pause(ref); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if st, _ := s.TriggerState(key); st != registry.StatePaused {
		t.Fatalf("state after Pause = %q", st)
	}
	if err := m.Resume(ref, "0 0 14 * * ?"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if next := s.NextFire(key); next.UTC().Hour() != 14 {
		t.Fatalf("next after Resume = %v", next)
	}

	if !m.Remove(ref) {
		t.Fatal("Remove = false")
	}
	if ok, _ := s.CheckExists(key); ok {
		t.Fatal("trigger exists after Remove")
	}
	if m.Remove(ref) {
		t.Fatal("second Remove = true")
	}
}

func TestRegisteredJobFiresThroughEngine(t *testing.T) {
	t.Parallel()
	s, bus := newTestService(t)
	events, unsub := bus.Subscribe(16)
	defer unsub()
	s.Start(context.Background())
	m := newManager(s)

	ran := make(chan struct{}, 8)
	err := m.Register(registry.JobSpec{
		Job:  registry.JobKey{Name: "ping"},
		Cron: everySecond,
		Work: registry.JobFunc(func(context.Context) error {
			ran <- struct{}{}
			return nil
		}),
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("registered job did not fire")
	}
	waitEvent(t, events, eventbus.TypeTriggerFired, time.Second)

	if !m.Remove(registry.RefFor("ping", "")) {
		t.Fatal("Remove = false")
	}
	// Drain anything in flight, then verify silence.
	time.Sleep(100 * time.Millisecond)
	for len(ran) > 0 {
		<-ran
	}
	select {
	case <-ran:
		t.Fatal("job fired after Remove")
	case <-time.After(1500 * time.Millisecond):
	}
}
