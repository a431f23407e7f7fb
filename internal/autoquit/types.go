// Package autoquit schedules the process' own termination at a future instant.
//
// It turns a relative duration ("1h30m") or an absolute local timestamp into a
// Deadline, fires a terminal callback exactly once when the deadline is reached,
// and drives a countdown display at a cadence that tightens as the deadline
// approaches. All interval arithmetic runs on the monotonic clock; the wall-clock
// target is kept only for display.
package autoquit

import (
	"math"
	"time"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

// Duration is a non-negative whole number of seconds. Zero disables auto-quit.
type Duration int64

// maxStdSeconds is the largest Duration representable as a time.Duration.
const maxStdSeconds = Duration(math.MaxInt64 / int64(time.Second))

// Std converts the duration to a time.Duration, saturating at the largest
// representable value instead of wrapping.
func (d Duration) Std() time.Duration {
	if d > maxStdSeconds {
		return math.MaxInt64
	}
	return time.Duration(d) * time.Second
}

// TargetKind tells which form of auto-quit input a Target carries.
type TargetKind string

const (
	// TargetNone means auto-quit was not requested.
	TargetNone TargetKind = "none"
	// TargetDuration is a relative duration measured from arm time.
	TargetDuration TargetKind = "duration"
	// TargetInstant is an absolute local wall-clock instant.
	TargetInstant TargetKind = "until"
)

// Target is the validated auto-quit request: either a duration or an instant.
type Target struct {
	Kind     TargetKind
	Duration Duration
	At       time.Time
	// Input is the raw text the target was parsed from, kept for logs and history.
	Input string
}

// DurationTarget builds a relative target.
func DurationTarget(d Duration, input string) Target {
	return Target{Kind: TargetDuration, Duration: d, Input: input}
}

// InstantTarget builds an absolute target.
func InstantTarget(at time.Time, input string) Target {
	return Target{Kind: TargetInstant, At: at, Input: input}
}

// ParseTarget parses the mutually exclusive duration/timestamp pair supplied
// by the CLI or config file. Both empty yields TargetNone.
func ParseTarget(forInput, untilInput string, loc *time.Location) (Target, error) {
	switch {
	case forInput != "" && untilInput != "":
		return Target{}, hostErrors.ConflictingTargets()
	case forInput != "":
		d, err := ParseDuration(forInput)
		if err != nil {
			return Target{}, err
		}
		return DurationTarget(d, forInput), nil
	case untilInput != "":
		at, err := ParseLocalTime(untilInput, loc)
		if err != nil {
			return Target{}, err
		}
		return InstantTarget(at, untilInput), nil
	default:
		return Target{Kind: TargetNone}, nil
	}
}

// Deadline is the canonical scheduling state for one run.
//
// Mono carries the monotonic clock reading and is the only value used for
// interval math. Wall is the validated target epoch used for display. Both
// denote the same instant at arm time and are never re-synced afterwards.
type Deadline struct {
	Mono  time.Time
	Wall  time.Time
	Armed time.Time
}

// Remaining returns the time left until the deadline, floored at zero.
func (d Deadline) Remaining(now time.Time) time.Duration {
	left := d.Mono.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Total returns the span between arming and the deadline.
func (d Deadline) Total() time.Duration {
	return d.Mono.Sub(d.Armed)
}

// ETA is the "ETA changed" signal delivered to the display collaborator.
type ETA struct {
	At    time.Time
	Label string
	Total time.Duration
}

// Tick is one countdown display update.
type Tick struct {
	Remaining time.Duration
	Cadence   time.Duration
	Next      time.Duration
	Visible   bool
}

// RemainingText formats the remaining time as DDDd HH:MM:SS.
func (t Tick) RemainingText() string {
	return FormatRemaining(t.Remaining)
}

// Display receives countdown signals. Implementations must not block for long;
// they are called from scheduler goroutines.
type Display interface {
	ETAChanged(eta ETA)
	Update(tick Tick)
	CadenceChanged(cadence time.Duration)
}

// Visibility reports whether anyone can currently observe the countdown.
type Visibility func() bool

// Reason explains why a run ended.
type Reason string

const (
	// ReasonDeadline means the auto-quit deadline was reached.
	ReasonDeadline Reason = "deadline"
	// ReasonCanceled means the run was stopped before the deadline.
	ReasonCanceled Reason = "canceled"
)
