// Package jobs provides the work units that config-declared jobs run:
// shell commands, signed webhooks and log lines.
package jobs
