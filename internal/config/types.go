package config

import (
	"strings"
)

const DefaultGroup = "DEFAULT_GROUP"

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Ops       OpsConfig       `json:"ops,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
	Events    EventsConfig    `json:"events,omitempty"`

	// Jobs is the declarative job list reconciled on start and on every reload.
	Jobs []JobConfig `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the trigger engine.
type SchedulerConfig struct {
	// Timezone for cron expressions without a CRON_TZ= prefix (IANA, e.g. "Asia/Jakarta").
	Timezone string `json:"timezone,omitempty"`
	// DefaultTimeout is a Go duration string (e.g. "10s", "1m"); default 5m.
	DefaultTimeout string `json:"default_timeout,omitempty"`
}

// StorageConfig controls the audit trail.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/jobreg.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// OpsConfig controls the operations HTTP server (health, metrics, triggers, audit, pprof).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"` // mount /debug/pprof/

	// Server timeouts (Go duration strings). WriteTimeout defaults to 0 (disabled)
	// so /debug/pprof/profile (which can take 30s+) works reliably.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	// Runtime profiling rates. Leave 0 to keep Go defaults.
	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

type EventsConfig struct {
	NATS *NATSConfig `json:"nats,omitempty"`
}

// NATSConfig forwards trigger events to NATS subjects <subject_prefix>.<event type>.
type NATSConfig struct {
	URL           string `json:"url"`
	SubjectPrefix string `json:"subject_prefix,omitempty"` // default: "jobreg.events"
	ClientName    string `json:"client_name,omitempty"`
	Buffer        int    `json:"buffer,omitempty"`
}

// Job kinds.
const (
	KindShell   = "shell"
	KindWebhook = "webhook"
	KindLog     = "log"
)

// JobConfig declares one job and its trigger.
//
// Example (YAML):
//
//	jobs:
//	  - name: reportJob
//	    group: reports
//	    cron: "0 0 12 * * ?"
//	    kind: webhook
//	    url: https://example.internal/hooks/report
//	    secret: s3cret
type JobConfig struct {
	Name        string `json:"name"`
	Group       string `json:"group,omitempty"`
	Trigger     string `json:"trigger,omitempty"` // default: name
	Cron        string `json:"cron"`
	Paused      bool   `json:"paused,omitempty"`
	Description string `json:"description,omitempty"`

	Kind    string `json:"kind"`
	Command string `json:"command,omitempty"` // shell
	URL     string `json:"url,omitempty"`     // webhook
	Secret  string `json:"secret,omitempty"`  // webhook HMAC key (do not log)
	Message string `json:"message,omitempty"` // log
	Timeout string `json:"timeout,omitempty"` // Go duration string
}

// GroupOrDefault returns the job group with DefaultGroup applied.
func (j JobConfig) GroupOrDefault() string {
	if g := strings.TrimSpace(j.Group); g != "" {
		return g
	}
	return DefaultGroup
}

// TriggerOrDefault returns the trigger name, defaulting to the job name.
func (j JobConfig) TriggerOrDefault() string {
	if t := strings.TrimSpace(j.Trigger); t != "" {
		return t
	}
	return strings.TrimSpace(j.Name)
}

// ID is the stable identity used to diff job lists: "<group>.<name>".
func (j JobConfig) ID() string {
	return j.GroupOrDefault() + "." + strings.TrimSpace(j.Name)
}
