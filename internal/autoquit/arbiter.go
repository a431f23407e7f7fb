package autoquit

import (
	"errors"
	"time"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

// ErrDisabled is returned by Arm for a plan that does not schedule auto-quit.
var ErrDisabled = errors.New("autoquit: auto-quit disabled")

// Bounds is the inclusive window, measured from now, a deadline must fall in.
type Bounds struct {
	Min time.Duration
	Max time.Duration
}

// DefaultBounds allows deadlines between 10 seconds and 366 days away.
var DefaultBounds = Bounds{
	Min: 10 * time.Second,
	Max: 366 * 24 * time.Hour,
}

// Plan is a target that passed validation but has not been armed yet.
type Plan struct {
	Target   Target
	Disabled bool
	// Remaining and Wall are the values seen at validation time.
	Remaining time.Duration
	Wall      time.Time
}

// Arbiter turns a Target into a Deadline, enforcing Bounds.
type Arbiter struct {
	bounds Bounds
	clock  Clock
}

// NewArbiter creates an arbiter. A nil clock uses SystemClock.
func NewArbiter(bounds Bounds, clock Clock) *Arbiter {
	if clock == nil {
		clock = SystemClock
	}
	return &Arbiter{bounds: bounds, clock: clock}
}

// Validate checks the target against the bounds as of now. A zero duration or
// an empty target yields a disabled plan.
func (a *Arbiter) Validate(t Target) (Plan, error) {
	now := a.clock.Now()

	var remaining time.Duration
	var wall time.Time
	switch t.Kind {
	case TargetDuration:
		if t.Duration == 0 {
			return Plan{Target: t, Disabled: true}, nil
		}
		// Compare whole seconds first; the nanosecond form may not fit.
		if int64(t.Duration) > int64(a.bounds.Max/time.Second) {
			return Plan{}, hostErrors.OutOfBounds(t.Duration.Std(), a.bounds.Min, a.bounds.Max)
		}
		remaining = t.Duration.Std()
		wall = now.Add(remaining).Round(0)
	case TargetInstant:
		wall = t.At.Round(0)
		remaining = wall.Sub(now)
	default:
		return Plan{Target: t, Disabled: true}, nil
	}

	if remaining < a.bounds.Min || remaining > a.bounds.Max {
		return Plan{}, hostErrors.OutOfBounds(remaining, a.bounds.Min, a.bounds.Max)
	}

	return Plan{Target: t, Remaining: remaining, Wall: wall}, nil
}

// Arm re-derives the time remaining immediately before arming and returns the
// Deadline. A target that has already passed fires immediately; it is not an
// error at this point.
func (a *Arbiter) Arm(p Plan) (Deadline, error) {
	if p.Disabled {
		return Deadline{}, ErrDisabled
	}

	now := a.clock.Now()

	var remaining time.Duration
	var wall time.Time
	switch p.Target.Kind {
	case TargetDuration:
		remaining = p.Target.Duration.Std()
		wall = now.Add(remaining).Round(0)
	case TargetInstant:
		wall = p.Target.At.Round(0)
		remaining = wall.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
	default:
		return Deadline{}, ErrDisabled
	}

	return Deadline{
		Mono:  now.Add(remaining),
		Wall:  wall,
		Armed: now,
	}, nil
}

// Resolve validates and arms in one step.
func (a *Arbiter) Resolve(t Target) (Deadline, error) {
	p, err := a.Validate(t)
	if err != nil {
		return Deadline{}, err
	}
	return a.Arm(p)
}
