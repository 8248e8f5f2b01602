package cronexpr

import (
	"errors"
	"fmt"
	"strings"
	"time"

	cron "github.com/netresearch/go-cron"
)

var (
	ErrMalformed    = errors.New("malformed cron expression")
	ErrNoFutureFire = errors.New("cron expression has no future fire time")
)

const (
	minYear = 1970
	maxYear = 2099
)

// Schedule is a parsed cron expression. Next returns the zero time when
// the schedule has no further matches.
type Schedule = cron.Schedule

const dayExtensions = cron.DomL | cron.DomW | cron.DowNth | cron.DowLast

var (
	// baseParser handles six-field expressions and descriptors; seconds are mandatory.
	baseParser = cron.MustNewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor | dayExtensions)
	// yearParser requires the seventh field and searches the whole year range.
	yearParser = cron.MustNewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Year | dayExtensions).WithMaxSearchYears(maxYear - minYear + 1)
)

// Parse parses expr in the process-local time zone (unless expr carries a TZ prefix).
func Parse(expr string) (Schedule, error) {
	return ParseIn(expr, nil)
}

// ParseIn parses expr, evaluating it in loc when expr has no CRON_TZ=/TZ= prefix.
// A nil loc means time.Local.
func ParseIn(expr string, loc *time.Location) (sched Schedule, err error) {
	// fail closed if the parser panics on a degenerate input
	defer func() {
		if r := recover(); r != nil {
			sched = nil
			err = fmt.Errorf("%w: %q: %v", ErrMalformed, expr, r)
		}
	}()

	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrMalformed)
	}

	tzPrefix := ""
	if strings.HasPrefix(s, "TZ=") || strings.HasPrefix(s, "CRON_TZ=") {
		i := strings.IndexAny(s, " \t")
		if i < 0 {
			return nil, fmt.Errorf("%w: %q: time zone without fields", ErrMalformed, expr)
		}
		tzPrefix = s[:i]
		s = strings.TrimSpace(s[i:])
	} else if loc != nil && loc != time.Local {
		tzPrefix = "CRON_TZ=" + loc.String()
	}

	withTZ := func(body string) string {
		if tzPrefix == "" {
			return body
		}
		return tzPrefix + " " + body
	}

	if strings.HasPrefix(s, "@") {
		if strings.HasPrefix(strings.ToLower(s), "@every") {
			return nil, fmt.Errorf("%w: %q: interval schedules are not cron expressions", ErrMalformed, expr)
		}
		sched, err := baseParser.Parse(withTZ(s))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformed, expr, err)
		}
		return sched, nil
	}

	fields, err := quartzFields(strings.Fields(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformed, expr, err)
	}
	p := baseParser
	if len(fields) == 7 {
		p = yearParser
	}
	sched, err = p.Parse(withTZ(strings.Join(fields, " ")))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrMalformed, expr, err)
	}
	return sched, nil
}
