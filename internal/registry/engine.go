package registry

// TriggerEngine stores jobs and triggers and fires triggers on schedule.
//
// Implementations must make each call atomic on their own tables. The Manager
// never holds locks across calls.
type TriggerEngine interface {
	CheckExists(key TriggerKey) (bool, error)
	// ScheduleJob stores a job detail and its first trigger together.
	ScheduleJob(job JobDetail, trigger Trigger) error
	// AddJob stores a job detail without a trigger; replace permits overwriting.
	AddJob(job JobDetail, replace bool) error
	// RescheduleJob replaces the trigger identified by key with trigger.
	// It fails with an error matching ErrNotFound when key is absent.
	RescheduleJob(key TriggerKey, trigger Trigger) error
	PauseTrigger(key TriggerKey) error
	ResumeTrigger(key TriggerKey) error
	// PauseJob pauses every trigger bound to the job.
	PauseJob(key JobKey) error
	DeleteJob(key JobKey) (bool, error)
	UnscheduleJob(key TriggerKey) (bool, error)
	// GetTrigger returns nil, nil when the trigger does not exist.
	GetTrigger(key TriggerKey) (*Trigger, error)
}

// StateReporter is optionally implemented by engines that track trigger state.
type StateReporter interface {
	TriggerState(key TriggerKey) (TriggerState, error)
}
