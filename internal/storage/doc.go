// Package storage persists the audit trail of job registry operations.
//
// Drivers:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database (modernc.org/sqlite, pure Go)
//
// Job and trigger state is not persisted; the declarative config is the source of truth.
package storage
