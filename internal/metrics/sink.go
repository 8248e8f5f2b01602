// Package metrics records registry and trigger-engine activity.
//
// Components depend on the Sink interface; NoopSink is used when metrics are
// disabled so callers never nil-check.
package metrics

import "time"

// Operation outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeNoop        = "noop"
	OutcomeInvalid     = "invalid"
	OutcomeNotFound    = "not_found"
	OutcomeEngineError = "engine_error"
	OutcomeFailed      = "failed"
)

// Skip reasons for fires that did not run a job.
const (
	SkipOverlap    = "overlap"
	SkipJobMissing = "job_missing"
	SkipStopped    = "stopped"
)

type Sink interface {
	// OperationCompleted records one registry operation (register, pause, ...).
	OperationCompleted(op, outcome string, d time.Duration)
	// TriggerFired records one job execution started by a trigger.
	TriggerFired(outcome string, d time.Duration)
	FireSkipped(reason string)
	// TriggersScheduled reports the number of triggers known to the engine.
	TriggersScheduled(n int)
}

// NoopSink is a no-op implementation of Sink.
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (NoopSink) OperationCompleted(string, string, time.Duration) {}
func (NoopSink) TriggerFired(string, time.Duration)               {}
func (NoopSink) FireSkipped(string)                               {}
func (NoopSink) TriggersScheduled(int)                            {}

// OrNoop returns s, or a NoopSink when s is nil.
func OrNoop(s Sink) Sink {
	if s == nil {
		return NoopSink{}
	}
	return s
}
