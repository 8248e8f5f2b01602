package registry

import (
	"fmt"
	"sync"
)

// fakeEngine is an in-memory TriggerEngine that records calls.
//
// A trigger resumed directly from PAUSED after missed ticks (see miss) fires
// once per missed tick, like a Quartz engine with a fire-now misfire policy.
type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	fail     map[string]error
	jobs     map[JobKey]JobDetail
	triggers map[TriggerKey]*Trigger
	paused   map[TriggerKey]bool
	missed   map[TriggerKey]int
	catchUps map[TriggerKey]int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		fail:     map[string]error{},
		jobs:     map[JobKey]JobDetail{},
		triggers: map[TriggerKey]*Trigger{},
		paused:   map[TriggerKey]bool{},
		missed:   map[TriggerKey]int{},
		catchUps: map[TriggerKey]int{},
	}
}

func (f *fakeEngine) record(call string) error {
	f.calls = append(f.calls, call)
	return f.fail[call]
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) count(call string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// miss simulates n scheduled ticks passing while the trigger is paused.
func (f *fakeEngine) miss(key TriggerKey, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paused[key] {
		f.missed[key] += n
	}
}

func (f *fakeEngine) CheckExists(key TriggerKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CheckExists"); err != nil {
		return false, err
	}
	_, ok := f.triggers[key]
	return ok, nil
}

func (f *fakeEngine) ScheduleJob(job JobDetail, trigger Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ScheduleJob"); err != nil {
		return err
	}
	if _, ok := f.triggers[trigger.Key]; ok {
		return fmt.Errorf("trigger %s already exists", trigger.Key)
	}
	f.jobs[job.Key] = job
	t := trigger
	f.triggers[trigger.Key] = &t
	return nil
}

func (f *fakeEngine) AddJob(job JobDetail, replace bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddJob"); err != nil {
		return err
	}
	if _, ok := f.jobs[job.Key]; ok && !replace {
		return fmt.Errorf("job %s already exists", job.Key)
	}
	f.jobs[job.Key] = job
	return nil
}

func (f *fakeEngine) RescheduleJob(key TriggerKey, trigger Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RescheduleJob"); err != nil {
		return err
	}
	if _, ok := f.triggers[key]; !ok {
		return fmt.Errorf("reschedule %s: %w", key, ErrNotFound)
	}
	t := trigger
	f.triggers[key] = &t
	delete(f.paused, key)
	delete(f.missed, key)
	return nil
}

func (f *fakeEngine) PauseTrigger(key TriggerKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PauseTrigger"); err != nil {
		return err
	}
	if _, ok := f.triggers[key]; ok {
		f.paused[key] = true
	}
	return nil
}

func (f *fakeEngine) ResumeTrigger(key TriggerKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ResumeTrigger"); err != nil {
		return err
	}
	if f.paused[key] {
		f.catchUps[key] += f.missed[key]
	}
	delete(f.paused, key)
	delete(f.missed, key)
	return nil
}

func (f *fakeEngine) PauseJob(key JobKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PauseJob"); err != nil {
		return err
	}
	for tk, t := range f.triggers {
		if t.JobKey == key {
			f.paused[tk] = true
		}
	}
	return nil
}

func (f *fakeEngine) DeleteJob(key JobKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteJob"); err != nil {
		return false, err
	}
	_, ok := f.jobs[key]
	delete(f.jobs, key)
	return ok, nil
}

func (f *fakeEngine) UnscheduleJob(key TriggerKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UnscheduleJob"); err != nil {
		return false, err
	}
	_, ok := f.triggers[key]
	delete(f.triggers, key)
	delete(f.paused, key)
	return ok, nil
}

func (f *fakeEngine) GetTrigger(key TriggerKey) (*Trigger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetTrigger"); err != nil {
		return nil, err
	}
	t, ok := f.triggers[key]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeEngine) TriggerState(key TriggerKey) (TriggerState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.triggers[key]; !ok {
		return StateUnknown, nil
	}
	if f.paused[key] {
		return StatePaused, nil
	}
	return StateNormal, nil
}

func (f *fakeEngine) isPaused(key TriggerKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused[key]
}

func (f *fakeEngine) trigger(key TriggerKey) *Trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.triggers[key]; ok {
		cp := *t
		return &cp
	}
	return nil
}
