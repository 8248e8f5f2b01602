package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks structural rules and every job's cron expression with checkCron.
// All problems are reported together.
func (c *Config) Validate(checkCron func(expr string) error) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if _, err := ParseDurationField("scheduler.default_timeout", c.Scheduler.DefaultTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	for _, f := range []struct{ path, raw string }{
		{"ops.read_timeout", c.Ops.ReadTimeout},
		{"ops.write_timeout", c.Ops.WriteTimeout},
		{"ops.idle_timeout", c.Ops.IdleTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Events.NATS != nil && strings.TrimSpace(c.Events.NATS.URL) == "" {
		errs = append(errs, errors.New("events.nats.url is required"))
	}

	seenJobs := map[string]int{}
	seenTriggers := map[string]int{}
	for i, j := range c.Jobs {
		path := JobPath(i, j)
		if strings.TrimSpace(j.Name) == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", path))
			continue
		}
		if prev, dup := seenJobs[j.ID()]; dup {
			errs = append(errs, fmt.Errorf("%s duplicates jobs[%d]", path, prev))
		}
		seenJobs[j.ID()] = i
		tid := j.GroupOrDefault() + "." + j.TriggerOrDefault()
		if prev, dup := seenTriggers[tid]; dup {
			errs = append(errs, fmt.Errorf("%s: trigger %s already used by jobs[%d]", path, tid, prev))
		}
		seenTriggers[tid] = i

		if checkCron != nil {
			if err := checkCron(j.Cron); err != nil {
				errs = append(errs, fmt.Errorf("%s.cron: %w", path, err))
			}
		}
		if _, err := ParseDurationField(path+".timeout", j.Timeout); err != nil {
			errs = append(errs, err)
		}
		if err := validateKind(path, j); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateKind(path string, j JobConfig) error {
	switch strings.ToLower(strings.TrimSpace(j.Kind)) {
	case KindShell:
		if strings.TrimSpace(j.Command) == "" {
			return fmt.Errorf("%s.command is required for kind shell", path)
		}
	case KindWebhook:
		u, err := url.Parse(strings.TrimSpace(j.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s.url must be an absolute http(s) URL", path)
		}
	case KindLog:
	case "":
		return fmt.Errorf("%s.kind is required", path)
	default:
		return fmt.Errorf("%s.kind %q is unknown (want shell, webhook or log)", path, j.Kind)
	}
	return nil
}
