package autoquit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is the lifecycle state of a countdown.
type State string

const (
	// StateIdle means nothing has been armed yet.
	StateIdle State = "IDLE"
	// StateArmed means the countdown is running.
	StateArmed State = "ARMED"
	// StateFired means the deadline was reached.
	StateFired State = "FIRED"
	// StateCanceled means the countdown was stopped early.
	StateCanceled State = "CANCELED"
)

// errDeadlineReached is the cancel cause used when the terminal fire beats the
// countdown to zero.
var errDeadlineReached = errors.New("autoquit: deadline reached")

// Scheduler drives the countdown display. Each iteration computes its own
// next wait from the time remaining, so there is exactly one pending wait and
// no busy polling.
type Scheduler struct {
	cfg     Config
	clock   Clock
	display Display
	visible Visibility
	log     *slog.Logger

	mu          sync.Mutex
	state       State
	lastCadence time.Duration
	last        Tick
}

// NewScheduler creates a scheduler. A nil clock uses SystemClock, a nil
// visibility func means always visible.
func NewScheduler(cfg Config, clock Clock, display Display, visible Visibility, logger *slog.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock
	}
	if visible == nil {
		visible = func() bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		clock:   clock,
		display: display,
		visible: visible,
		log:     logger,
		state:   StateIdle,
	}
}

// Run ticks until the countdown reaches zero (returns nil) or ctx is done
// (returns ctx.Err()). The final tick reports zero remaining. A ctx canceled
// because the deadline fired elsewhere ends in FIRED and returns nil.
func (s *Scheduler) Run(ctx context.Context, d Deadline) error {
	s.setState(StateArmed)

	for {
		if ctx.Err() != nil {
			return s.stopped(ctx)
		}

		remaining := d.Remaining(s.clock.Now())
		visible := s.visible()
		next, cadence := s.cfg.NextInterval(remaining, visible)
		tick := Tick{Remaining: remaining, Cadence: cadence, Next: next, Visible: visible}

		s.mu.Lock()
		s.last = tick
		announce := cadence != s.lastCadence
		s.lastCadence = cadence
		s.mu.Unlock()

		if visible {
			s.display.Update(tick)
		}
		if announce {
			s.log.Debug("countdown cadence changed", "cadence", cadence, "remaining", FormatRemaining(remaining))
			s.display.CadenceChanged(cadence)
		}

		if remaining <= 0 {
			s.setState(StateFired)
			return nil
		}

		t := s.clock.NewTimer(next)
		select {
		case <-ctx.Done():
			t.Stop()
			return s.stopped(ctx)
		case <-t.C():
		}
	}
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Last returns the most recent tick.
func (s *Scheduler) Last() Tick {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) stopped(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), errDeadlineReached) {
		s.setState(StateFired)
		return nil
	}
	s.setState(StateCanceled)
	return ctx.Err()
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
