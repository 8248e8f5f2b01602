package cronexpr

import (
	"fmt"
	"time"
)

// Validator decides whether a cron expression is acceptable for scheduling.
//
// The zero value evaluates expressions in time.Local against the wall clock.
type Validator struct {
	// Location is used for expressions without a CRON_TZ=/TZ= prefix.
	Location *time.Location
	// LocationFunc, when set, wins over Location. It lets the zone follow
	// a reconfigurable engine.
	LocationFunc func() *time.Location
	// Now overrides the clock (tests).
	Now func() time.Time
}

func (v *Validator) now() time.Time {
	if v != nil && v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *Validator) location() *time.Location {
	if v == nil {
		return nil
	}
	if v.LocationFunc != nil {
		return v.LocationFunc()
	}
	return v.Location
}

// Check returns nil when expr parses and fires at least once strictly after now.
// Errors wrap ErrMalformed or ErrNoFutureFire.
func (v *Validator) Check(expr string) error {
	_, err := firstFire(expr, v.location(), v.now())
	return err
}

// Valid reports whether Check(expr) succeeds. It never panics.
func (v *Validator) Valid(expr string) bool {
	return v.Check(expr) == nil
}

// FirstFireTime returns the first fire time after now.
func (v *Validator) FirstFireTime(expr string) (time.Time, error) {
	return firstFire(expr, v.location(), v.now())
}

// Valid validates expr against the wall clock in time.Local.
func Valid(expr string) bool {
	return ValidAt(expr, time.Now())
}

// ValidAt validates expr as if the current instant were now.
func ValidAt(expr string, now time.Time) bool {
	_, err := firstFire(expr, nil, now)
	return err == nil
}

// FirstFireTime returns the first fire time of expr strictly after now.
func FirstFireTime(expr string, now time.Time) (time.Time, error) {
	return firstFire(expr, nil, now)
}

func firstFire(expr string, loc *time.Location, now time.Time) (time.Time, error) {
	sched, err := ParseIn(expr, loc)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(now)
	if next.IsZero() || !next.After(now) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrNoFutureFire, expr)
	}
	return next, nil
}

// NextN returns up to n upcoming fire times of sched after from.
// It stops early when the schedule is exhausted.
func NextN(sched Schedule, from time.Time, n int) []time.Time {
	if sched == nil || n <= 0 {
		return nil
	}
	out := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}
