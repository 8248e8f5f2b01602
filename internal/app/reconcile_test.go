package app

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"jobreg/internal/config"
	"jobreg/internal/registry"
	"jobreg/pkg/logx"
)

type recordingRegistrar struct {
	calls   []string
	failOn  map[string]error
	removed bool
}

func (r *recordingRegistrar) record(call string) error {
	r.calls = append(r.calls, call)
	for prefix, err := range r.failOn {
		if strings.HasPrefix(call, prefix) {
			return err
		}
	}
	return nil
}

func (r *recordingRegistrar) Register(spec registry.JobSpec) error {
	return r.record(fmt.Sprintf("register %s %s %s %T", spec.Job, spec.Trigger, spec.Cron, spec.Work))
}

func (r *recordingRegistrar) Pause(ref registry.Ref) error {
	return r.record("pause " + ref.Trigger.String())
}

func (r *recordingRegistrar) Resume(ref registry.Ref, cronExpr string) error {
	return r.record("resume " + ref.Trigger.String() + " " + cronExpr)
}

func (r *recordingRegistrar) Remove(ref registry.Ref) bool {
	_ = r.record("remove " + ref.Job.String() + " " + ref.Trigger.String())
	return !r.removed
}

func (r *recordingRegistrar) Modify(key registry.TriggerKey, cronExpr string) error {
	return r.record("modify " + key.String() + " " + cronExpr)
}

func (r *recordingRegistrar) take() []string {
	out := r.calls
	r.calls = nil
	return out
}

func logJob(name, cron string) config.JobConfig {
	return config.JobConfig{Name: name, Group: "reports", Cron: cron, Kind: config.KindLog, Message: "hi"}
}

func assertCalls(t *testing.T, got []string, want ...string) {
	t.Helper()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("calls:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestReconcilerLifecycle(t *testing.T) {
	t.Parallel()
	reg := &recordingRegistrar{}
	r := NewReconciler(reg, nil, logx.Nop())

	report := logJob("reportJob", "0 0 12 * * ?")
	report.Trigger = "reportTrigger"
	paused := logJob("nightly", "0 0 2 * * ?")
	paused.Paused = true

	res, err := r.Apply([]config.JobConfig{report, paused})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Added != 2 {
		t.Fatalf("result = %+v", res)
	}
	assertCalls(t, reg.take(),
		"register reports.reportJob reports.reportTrigger 0 0 12 * * ? *jobs.LogLine",
		"register reports.nightly reports.nightly 0 0 2 * * ? *jobs.LogLine",
		"pause reports.nightly",
	)

	// Same list again is a no-op.
	res, _ = r.Apply([]config.JobConfig{report, paused})
	if res.Unchanged != 2 || len(reg.take()) != 0 {
		t.Fatalf("second apply not idempotent: %+v", res)
	}

	// Cron change -> Modify; unpause -> Resume with the new cron.
	report.Cron = "0 0 13 * * ?"
	paused.Paused = false
	if _, err := r.Apply([]config.JobConfig{report, paused}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	assertCalls(t, reg.take(),
		"modify reports.reportTrigger 0 0 13 * * ?",
		"resume reports.nightly 0 0 2 * * ?",
	)

	// Work change re-registers; pausing after a reschedule pauses again.
	report.Message = "changed"
	report.Paused = true
	if _, err := r.Apply([]config.JobConfig{report, paused}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	assertCalls(t, reg.take(),
		"register reports.reportJob reports.reportTrigger 0 0 13 * * ? *jobs.LogLine",
		"pause reports.reportTrigger",
	)

	// Dropped job is removed.
	res, _ = r.Apply([]config.JobConfig{report})
	if res.Removed != 1 {
		t.Fatalf("result = %+v", res)
	}
	assertCalls(t, reg.take(), "remove reports.nightly reports.nightly")
	if got := r.Applied(); len(got) != 1 || got[0] != "reports.reportJob" {
		t.Fatalf("Applied = %v", got)
	}
}

func TestReconcilerTriggerRename(t *testing.T) {
	t.Parallel()
	reg := &recordingRegistrar{}
	r := NewReconciler(reg, nil, logx.Nop())
	j := logJob("reportJob", "0 0 12 * * ?")
	if _, err := r.Apply([]config.JobConfig{j}); err != nil {
		t.Fatal(err)
	}
	reg.take()

	j.Trigger = "renamed"
	if _, err := r.Apply([]config.JobConfig{j}); err != nil {
		t.Fatal(err)
	}
	assertCalls(t, reg.take(),
		"remove reports.reportJob reports.reportJob",
		"register reports.reportJob reports.renamed 0 0 12 * * ? *jobs.LogLine",
	)
}

func TestReconcilerRetriesFailedJobs(t *testing.T) {
	t.Parallel()
	reg := &recordingRegistrar{failOn: map[string]error{"register reports.bad": registry.ErrInvalidSchedule}}
	r := NewReconciler(reg, nil, logx.Nop())

	good := logJob("good", "0 0 12 * * ?")
	bad := logJob("bad", "0 0 12 * * ?")
	res, err := r.Apply([]config.JobConfig{bad, good})
	if !errors.Is(err, registry.ErrInvalidSchedule) || !strings.Contains(err.Error(), "reports.bad") {
		t.Fatalf("Apply err = %v", err)
	}
	if res.Added != 1 {
		t.Fatalf("good job not applied: %+v", res)
	}
	reg.take()

	reg.failOn = nil
	res, err = r.Apply([]config.JobConfig{bad, good})
	if err != nil || res.Added != 1 || res.Unchanged != 1 {
		t.Fatalf("retry = %+v, %v", res, err)
	}
	assertCalls(t, reg.take(), "register reports.bad reports.bad 0 0 12 * * ? *jobs.LogLine")
}

func TestReconcilerRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	reg := &recordingRegistrar{}
	r := NewReconciler(reg, nil, logx.Nop())
	j := logJob("x", "0 0 12 * * ?")
	j.Kind = "ftp"
	if _, err := r.Apply([]config.JobConfig{j}); err == nil {
		t.Fatal("unknown kind accepted")
	}
	if len(reg.calls) != 0 {
		t.Fatalf("registry called for an unbuildable job: %v", reg.calls)
	}
}
