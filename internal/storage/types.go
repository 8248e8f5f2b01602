package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": <path without ext>.audit.jsonl
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one registry operation.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time `json:"at"`
	Op      string    `json:"op"`
	Job     string    `json:"job,omitempty"`
	Trigger string    `json:"trigger,omitempty"`
	Cron    string    `json:"cron,omitempty"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	TookMS  int64     `json:"took_ms"`
}

// DefaultRecentLimit bounds RecentAudit when the caller passes limit <= 0.
const DefaultRecentLimit = 100
