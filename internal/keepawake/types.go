// Package keepawake holds a process-scoped sleep inhibitor while stay-awake runs.
//
// A Manager drives an OFF/PENDING/ON/DEGRADED state machine over an OS
// Adapter. Failure to inhibit sleep is reported as DEGRADED and never stops
// the run; every exit path releases the inhibitor so normal power management
// is restored.
package keepawake

import (
	"context"
	"log/slog"
	"time"
)

// State is the keep-awake runtime state.
type State string

const (
	// StateOff indicates no inhibitor is held.
	StateOff State = "OFF"
	// StatePending indicates an inhibitor acquire is in progress.
	StatePending State = "PENDING"
	// StateOn indicates the inhibitor is active.
	StateOn State = "ON"
	// StateDegraded indicates keep-awake was wanted but could not be maintained.
	StateDegraded State = "DEGRADED"
)

// DegradedReason identifies why keep-awake entered degraded mode.
type DegradedReason string

const (
	// DegradedReasonUnsupportedEnvironment means the OS offers no inhibitor
	// path this build knows how to use.
	DegradedReasonUnsupportedEnvironment DegradedReason = "unsupported_environment"
	// DegradedReasonAcquireFailed means every acquire attempt failed.
	DegradedReasonAcquireFailed DegradedReason = "acquire_failed"
	// DegradedReasonIntegrityLost means a held inhibitor went away while
	// keep-awake was still wanted.
	DegradedReasonIntegrityLost DegradedReason = "integrity_lost"
)

// Status is a snapshot of keep-awake state.
type Status struct {
	State          State          `json:"state"`
	DesiredEnabled bool           `json:"desired_enabled"`
	Reason         DegradedReason `json:"reason,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at"`
	// Revision increments on every transition.
	Revision int64 `json:"revision"`
}

// Handle represents an acquired inhibitor.
type Handle interface {
	// Done is closed when the inhibitor is gone, released or not.
	Done() <-chan struct{}
	// Err returns why the inhibitor went away. It is nil after Release.
	Err() error
	// Release drops the inhibitor and waits for it to go away.
	Release(ctx context.Context) error
}

// Adapter acquires OS-specific inhibitors.
type Adapter interface {
	Acquire(ctx context.Context) (Handle, error)
}

// Options configures manager behavior.
type Options struct {
	// Now returns current time; defaults to time.Now.
	Now func() time.Time
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// AcquireAttempts bounds acquire retries; defaults to 3.
	AcquireAttempts int
	// AcquireInterval is the first retry delay; defaults to 250ms.
	AcquireInterval time.Duration
	// OnChange is called after every transition, outside the manager lock.
	OnChange func(Status)
}

// PowerSnapshot is a point-in-time reading of host power state.
// Nil pointer fields indicate unknown readings.
type PowerSnapshot struct {
	OnBattery      *bool `json:"on_battery,omitempty"`
	BatteryPercent *int  `json:"battery_percent,omitempty"`
	ExternalPower  *bool `json:"external_power,omitempty"`
}

// PowerProvider returns the current power state of the host.
type PowerProvider interface {
	Snapshot() PowerSnapshot
}
