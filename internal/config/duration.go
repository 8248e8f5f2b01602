package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNegativeDuration = errors.New("duration must be >= 0")

// DurationError names the config setting holding a bad duration,
// e.g. "jobs[1](reports.daily).timeout".
type DurationError struct {
	Path string
	Raw  string
	Err  error
}

func (e *DurationError) Error() string {
	if errors.Is(e.Err, ErrNegativeDuration) {
		return fmt.Sprintf("%s: %v (got %q)", e.Path, e.Err, e.Raw)
	}
	return fmt.Sprintf("%s: invalid duration %q: %v", e.Path, e.Raw, e.Err)
}

func (e *DurationError) Unwrap() error { return e.Err }

// ParseDurationField parses a Go duration. Blank means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &DurationError{Path: path, Raw: raw, Err: err}
	}
	if d < 0 {
		return 0, &DurationError{Path: path, Raw: raw, Err: ErrNegativeDuration}
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// JobPath names the i-th job in error messages.
func JobPath(i int, j JobConfig) string {
	if strings.TrimSpace(j.Name) == "" {
		return fmt.Sprintf("jobs[%d]", i)
	}
	return fmt.Sprintf("jobs[%d](%s)", i, j.ID())
}

// TimeoutLimit is the job's own run limit. Zero leaves the job on
// scheduler.default_timeout.
func (j JobConfig) TimeoutLimit() (time.Duration, error) {
	return ParseDurationField("jobs("+j.ID()+").timeout", j.Timeout)
}
