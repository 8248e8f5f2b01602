package registry

import (
	"context"
	"time"

	"jobreg/internal/cronexpr"
	"jobreg/internal/metrics"
	"jobreg/internal/storage"
	"jobreg/pkg/logx"
)

// Auditor receives one entry per registry operation. storage.Store satisfies it.
type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Option func(*Manager)

func WithLogger(log logx.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithValidator replaces the default validator, which evaluates expressions in
// time.Local against the manager clock.
func WithValidator(v *cronexpr.Validator) Option {
	return func(m *Manager) { m.validator = v }
}

func WithMetrics(s metrics.Sink) Option {
	return func(m *Manager) { m.metrics = s }
}

func WithAuditor(a Auditor) Option {
	return func(m *Manager) { m.audit = a }
}

// WithClock sets the clock used for trigger start times and validation.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}
