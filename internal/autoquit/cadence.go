package autoquit

import (
	"fmt"
	"time"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

// CadenceRule applies Every as the update interval while the time remaining is
// strictly greater than Above. The last rule of a table is the catch-all and
// has Above == 0.
type CadenceRule struct {
	Above time.Duration
	Every time.Duration
}

// Config holds the countdown tuning. It is passed to the Scheduler at
// construction; nothing here is process-wide state.
type Config struct {
	// Cadence is evaluated top-down, first match wins.
	Cadence []CadenceRule
	// SnapThreshold enables boundary snapping while remaining >= SnapThreshold.
	SnapThreshold time.Duration
	// SnapMinimum is the shortest snapped wait; closer boundaries are skipped.
	SnapMinimum time.Duration
	// BackoffThreshold disables hidden backoff within the final stretch.
	BackoffThreshold time.Duration
	// BackoffMinimum is the shortest wait while hidden.
	BackoffMinimum time.Duration
}

// DefaultConfig returns the stock countdown tuning.
func DefaultConfig() Config {
	return Config{
		Cadence: []CadenceRule{
			{Above: 24 * time.Hour, Every: time.Hour},
			{Above: 10 * time.Minute, Every: 10 * time.Minute},
			{Above: time.Minute, Every: 10 * time.Second},
			{Above: 0, Every: time.Second},
		},
		SnapThreshold:    time.Minute,
		SnapMinimum:      200 * time.Millisecond,
		BackoffThreshold: time.Minute,
		BackoffMinimum:   time.Minute,
	}
}

// Validate checks the cadence table invariants: thresholds strictly
// descending, a catch-all last rule, positive intervals that never grow as
// the deadline nears.
func (c Config) Validate() error {
	if len(c.Cadence) == 0 {
		return hostErrors.InvalidCadence("table is empty")
	}
	for i, r := range c.Cadence {
		if r.Every <= 0 {
			return hostErrors.InvalidCadence(fmt.Sprintf("rule %d: interval must be positive", i+1))
		}
		if r.Above < 0 {
			return hostErrors.InvalidCadence(fmt.Sprintf("rule %d: threshold must not be negative", i+1))
		}
		if i == 0 {
			continue
		}
		prev := c.Cadence[i-1]
		if r.Above >= prev.Above {
			return hostErrors.InvalidCadence(fmt.Sprintf("rule %d: thresholds must be strictly descending", i+1))
		}
		if r.Every > prev.Every {
			return hostErrors.InvalidCadence(fmt.Sprintf("rule %d: interval must not exceed the rule above it", i+1))
		}
	}
	if last := c.Cadence[len(c.Cadence)-1]; last.Above != 0 {
		return hostErrors.InvalidCadence("last rule must be the catch-all (above = 0)")
	}
	if c.SnapThreshold < 0 || c.SnapMinimum < 0 || c.BackoffThreshold < 0 || c.BackoffMinimum < 0 {
		return hostErrors.InvalidCadence("thresholds must not be negative")
	}
	return nil
}

// CadenceFor returns the update interval for the given time remaining.
func (c Config) CadenceFor(remaining time.Duration) time.Duration {
	for i, r := range c.Cadence {
		if remaining > r.Above || i == len(c.Cadence)-1 {
			return r.Every
		}
	}
	return time.Second
}

// NextInterval plans the wait before the next tick.
//
// Far from the deadline the wait is shortened so the next tick lands on a
// multiple of the cadence. While hidden the wait is widened to BackoffMinimum,
// except in the final BackoffThreshold. The wait never passes the deadline.
func (c Config) NextInterval(remaining time.Duration, visible bool) (next, cadence time.Duration) {
	if remaining <= 0 {
		return 0, c.CadenceFor(0)
	}

	cadence = c.CadenceFor(remaining)
	next = cadence

	if remaining >= c.SnapThreshold {
		if off := remaining % cadence; off != 0 {
			next = off
			if next < c.SnapMinimum {
				next += cadence
			}
			if next > cadence {
				next = cadence
			}
		}
	}

	if !visible && remaining > c.BackoffThreshold && next < c.BackoffMinimum {
		next = c.BackoffMinimum
	}

	if next > remaining {
		next = remaining
	}
	return next, cadence
}
