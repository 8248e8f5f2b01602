package registry

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultGroup is applied to job and trigger keys with an empty group.
const DefaultGroup = "DEFAULT_GROUP"

// JobKey identifies a job.
type JobKey struct {
	Name  string
	Group string
}

// TriggerKey identifies a trigger.
type TriggerKey struct {
	Name  string
	Group string
}

func (k JobKey) String() string     { return keyString(k.Group, k.Name) }
func (k TriggerKey) String() string { return keyString(k.Group, k.Name) }

func keyString(group, name string) string {
	if name == "" && group == "" {
		return ""
	}
	return group + "." + name
}

func (k JobKey) normalized() JobKey {
	k.Name = strings.TrimSpace(k.Name)
	k.Group = strings.TrimSpace(k.Group)
	if k.Group == "" {
		k.Group = DefaultGroup
	}
	return k
}

func (k TriggerKey) normalized() TriggerKey {
	k.Name = strings.TrimSpace(k.Name)
	k.Group = strings.TrimSpace(k.Group)
	if k.Group == "" {
		k.Group = DefaultGroup
	}
	return k
}

// Job is a unit of work executed when its trigger fires.
type Job interface {
	Execute(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Execute(ctx context.Context) error { return f(ctx) }

// JobDetail is the engine's record of a job.
type JobDetail struct {
	Key         JobKey
	Job         Job
	Description string
	// Durable jobs are kept by the engine even without triggers.
	Durable bool
}

// Trigger binds a cron expression to a job.
type Trigger struct {
	Key            TriggerKey
	JobKey         JobKey
	CronExpression string
	// StartAt is the earliest instant the trigger may fire; zero means now.
	StartAt     time.Time
	Description string
}

// JobSpec describes a job to register.
//
// Empty groups default to DefaultGroup, an empty job name to the work unit's
// type name, and an empty trigger name to the job name.
type JobSpec struct {
	Job         JobKey
	Trigger     TriggerKey
	Cron        string
	Work        Job
	Description string
}

func (s JobSpec) withDefaults() JobSpec {
	s.Job = s.Job.normalized()
	s.Trigger = s.Trigger.normalized()
	if s.Job.Name == "" && s.Work != nil {
		s.Job.Name = strings.TrimPrefix(fmt.Sprintf("%T", s.Work), "*")
	}
	if s.Trigger.Name == "" {
		s.Trigger.Name = s.Job.Name
	}
	return s
}

// Ref addresses a registered job and its trigger.
// Either name may be omitted; it then defaults to the other one.
type Ref struct {
	Job     JobKey
	Trigger TriggerKey
}

// RefFor returns a Ref for a job registered with the same name and group for
// both job and trigger.
func RefFor(name, group string) Ref {
	return Ref{Job: JobKey{Name: name, Group: group}, Trigger: TriggerKey{Name: name, Group: group}}
}

func (r Ref) normalized() Ref {
	r.Job = r.Job.normalized()
	r.Trigger = r.Trigger.normalized()
	if r.Trigger.Name == "" {
		r.Trigger.Name = r.Job.Name
	}
	if r.Job.Name == "" {
		r.Job.Name = r.Trigger.Name
	}
	return r
}

// TriggerState is the engine-reported state of a trigger.
type TriggerState string

const (
	StateNormal  TriggerState = "NORMAL"
	StatePaused  TriggerState = "PAUSED"
	StateUnknown TriggerState = ""
)

// Binding is the read-only view returned by Describe.
type Binding struct {
	Trigger Trigger
	State   TriggerState
	// Next is the next fire time computed from the cron expression; zero when exhausted.
	Next time.Time
}
