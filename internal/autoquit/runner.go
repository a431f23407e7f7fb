package autoquit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// ErrAlreadyStarted is returned when Start is called on a used Runner.
var ErrAlreadyStarted = errors.New("autoquit: runner already started")

// Terminator is the "terminate now" sink. It is called exactly once when the
// deadline is reached and must not depend on the display being alive.
type Terminator func(reason Reason) error

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Config tunes the countdown; defaults to DefaultConfig().
	Config *Config
	// Clock defaults to SystemClock.
	Clock Clock
	// Display receives ETA and countdown updates; defaults to a no-op.
	Display Display
	// Visible reports whether the countdown is observed; defaults to true.
	Visible Visibility
	// Terminate is invoked once at the deadline.
	Terminate Terminator
	// Exit forces process exit when Terminate fails; defaults to os.Exit.
	Exit func(code int)
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Status is a snapshot of a Runner.
type Status struct {
	State     State
	Deadline  Deadline
	Remaining time.Duration
	Cadence   time.Duration
	LastTick  Tick
}

// Runner arms the terminal OneShot and the countdown Scheduler against the
// same Deadline. Only one Deadline per Runner; a new run needs a new Runner.
type Runner struct {
	clock     Clock
	display   Display
	terminate Terminator
	exit      func(int)
	log       *slog.Logger

	oneshot *OneShot
	sched   *Scheduler

	mu          sync.Mutex
	state       State
	deadline    Deadline
	cancelSched context.CancelCauseFunc

	terminating atomic.Bool
	done        chan struct{}
	doneOnce    sync.Once
}

// NewRunner creates an idle Runner.
func NewRunner(opts RunnerOptions) *Runner {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock
	}
	display := opts.Display
	if display == nil {
		display = nopDisplay{}
	}
	exit := opts.Exit
	if exit == nil {
		exit = os.Exit
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "autoquit")

	r := &Runner{
		clock:     clock,
		terminate: opts.Terminate,
		exit:      exit,
		log:       logger,
		oneshot:   NewOneShot(clock),
		state:     StateIdle,
		done:      make(chan struct{}),
	}
	r.display = guardedDisplay{r: r, next: display}
	r.sched = NewScheduler(cfg, clock, r.display, opts.Visible, logger)
	return r
}

// Start announces the ETA and arms both the terminal fire and the countdown.
// Canceling ctx cancels the run.
func (r *Runner) Start(ctx context.Context, d Deadline) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	sctx, cancel := context.WithCancelCause(ctx)
	r.state = StateArmed
	r.deadline = d
	r.cancelSched = cancel
	r.mu.Unlock()

	now := r.clock.Now()
	eta := ETA{At: d.Wall, Label: ETALabel(d.Wall, now), Total: d.Total()}
	r.log.Info("auto-quit armed", "eta", eta.Label, "remaining", FormatRemaining(d.Remaining(now)))
	r.display.ETAChanged(eta)

	r.oneshot.Arm(d, r.fire)
	go func() {
		_ = r.sched.Run(sctx, d)
	}()
	go func() {
		select {
		case <-ctx.Done():
			r.Cancel()
		case <-r.done:
		}
	}()
	return nil
}

// Cancel stops a running countdown before its deadline. It reports whether
// this call did the canceling; repeated calls, calls on an idle runner and
// calls after the deadline fired are no-ops.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	if r.state != StateArmed {
		r.mu.Unlock()
		return false
	}
	r.state = StateCanceled
	cancel := r.cancelSched
	r.mu.Unlock()

	r.oneshot.Cancel()
	cancel(nil)
	r.log.Info("auto-quit canceled")
	r.finish()
	return true
}

// Done is closed once the run fired or was canceled.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Terminating reports whether the terminal fire has been dispatched.
func (r *Runner) Terminating() bool {
	return r.terminating.Load()
}

// Status returns a snapshot of the run.
func (r *Runner) Status() Status {
	r.mu.Lock()
	st := Status{State: r.state, Deadline: r.deadline}
	r.mu.Unlock()

	st.LastTick = r.sched.Last()
	st.Cadence = st.LastTick.Cadence
	if st.State == StateArmed {
		st.Remaining = st.Deadline.Remaining(r.clock.Now())
	}
	return st
}

func (r *Runner) fire() {
	if !r.terminating.CompareAndSwap(false, true) {
		return
	}

	r.mu.Lock()
	if r.state != StateArmed {
		r.mu.Unlock()
		return
	}
	r.state = StateFired
	cancel := r.cancelSched
	r.mu.Unlock()

	cancel(errDeadlineReached)
	r.sched.setState(StateFired)
	r.log.Info("auto-quit deadline reached, terminating")

	if err := r.dispatch(ReasonDeadline); err != nil {
		r.log.Error("terminate dispatch failed, forcing exit", "error", err)
		r.finish()
		r.exit(1)
		return
	}
	r.finish()
}

func (r *Runner) dispatch(reason Reason) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("terminate sink panicked: %v", p)
		}
	}()
	if r.terminate == nil {
		return errors.New("no terminate sink configured")
	}
	return r.terminate(reason)
}

func (r *Runner) finish() {
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *Runner) accepting() bool {
	if r.terminating.Load() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == StateArmed
}

// guardedDisplay drops output that arrives after the run ended and contains
// renderer panics, so the countdown and the terminal fire keep running.
type guardedDisplay struct {
	r    *Runner
	next Display
}

func (g guardedDisplay) ETAChanged(eta ETA) {
	g.call("eta", func() { g.next.ETAChanged(eta) })
}

func (g guardedDisplay) Update(tick Tick) {
	g.call("update", func() { g.next.Update(tick) })
}

func (g guardedDisplay) CadenceChanged(cadence time.Duration) {
	g.call("cadence", func() { g.next.CadenceChanged(cadence) })
}

func (g guardedDisplay) call(event string, fn func()) {
	if !g.r.accepting() {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			g.r.log.Error("countdown display panicked", "event", event, "panic", p)
		}
	}()
	fn()
}

type nopDisplay struct{}

func (nopDisplay) ETAChanged(ETA)               {}
func (nopDisplay) Update(Tick)                  {}
func (nopDisplay) CadenceChanged(time.Duration) {}
