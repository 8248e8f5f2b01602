package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jobreg/internal/config"
	"jobreg/internal/cronexpr"
	"jobreg/internal/ops"
)

// ValidateConfig rejects a config before it is committed, at startup and on
// every hot reload. Cron expressions are checked in the configured time zone.
func ValidateConfig(_ context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err))
		} else {
			loc = l
		}
	}
	v := &cronexpr.Validator{Location: loc}
	if err := cfg.Validate(v.Check); err != nil {
		errs = append(errs, err)
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := ops.FromConfig(cfg.Ops); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
