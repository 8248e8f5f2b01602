package registry

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrNotFound        = errors.New("trigger not found")
	ErrEngine          = errors.New("trigger engine failure")
	ErrNoWork          = errors.New("job has no work unit")
)

// InvalidScheduleError reports a cron expression that is malformed or never fires
// in the future. Errors.Is matches both ErrInvalidSchedule and the validator cause.
type InvalidScheduleError struct {
	Expr string
	Err  error
}

func (e *InvalidScheduleError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid schedule %q", e.Expr)
	}
	return fmt.Sprintf("invalid schedule %q: %v", e.Expr, e.Err)
}

func (e *InvalidScheduleError) Unwrap() []error { return []error{ErrInvalidSchedule, e.Err} }

// NotFoundError reports an operation on a trigger the engine does not know.
type NotFoundError struct {
	Trigger TriggerKey
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("trigger %s not found", e.Trigger) }

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// EngineError wraps a failure reported by the TriggerEngine.
type EngineError struct {
	Op      string // registry operation
	Call    string // engine method that failed
	Job     JobKey
	Trigger TriggerKey
	Cron    string
	Err     error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: engine %s failed (job=%s trigger=%s cron=%q): %v",
		e.Op, e.Call, e.Job, e.Trigger, e.Cron, e.Err)
}

func (e *EngineError) Unwrap() []error { return []error{ErrEngine, e.Err} }
