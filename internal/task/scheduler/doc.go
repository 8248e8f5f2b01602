// Package scheduler is the in-process trigger engine behind the job registry.
//
// It implements registry.TriggerEngine on top of robfig/cron/v3:
//   - jobs and triggers live in memory, keyed by (name, group)
//   - each NORMAL trigger owns one cron entry; pausing removes the entry
//   - resuming re-adds the entry, which computes its next fire from now,
//     so missed fires are never replayed
//   - fires run through cron.Recover and cron.SkipIfStillRunning
package scheduler
