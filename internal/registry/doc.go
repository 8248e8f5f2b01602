// Package registry manages the lifecycle of cron-scheduled jobs on top of a
// TriggerEngine: register, pause, resume, remove and modify.
//
// A job is bound to exactly one trigger. Identities are (name, group) pairs with
// DefaultGroup applied to empty groups. Every cron expression is validated before
// any engine call; an invalid one never reaches the engine.
//
// The Manager holds no mutable state of its own. Serialization and persistence
// belong to the engine.
package registry
