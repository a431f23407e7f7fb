package autoquit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{
		Cadence:       []CadenceRule{{Above: 0, Every: 20 * time.Millisecond}},
		SnapThreshold: time.Hour,
		SnapMinimum:   time.Millisecond,
	}
}

type runnerHarness struct {
	runner    *Runner
	display   *recordingDisplay
	terminate atomic.Int32
	exitCode  chan int
}

func newRunnerHarness(t *testing.T, sink func(Reason) error) *runnerHarness {
	t.Helper()
	h := &runnerHarness{display: newRecordingDisplay(), exitCode: make(chan int, 1)}
	h.runner = NewRunner(RunnerOptions{
		Config:  fastConfig(),
		Display: h.display,
		Terminate: func(reason Reason) error {
			h.terminate.Add(1)
			if sink != nil {
				return sink(reason)
			}
			return nil
		},
		Exit:   func(code int) { h.exitCode <- code },
		Logger: quietLogger(),
	})
	return h
}

func waitDone(t *testing.T, r *Runner) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not finish")
	}
}

func TestRunner_TerminatesExactlyOnce(t *testing.T) {
	h := newRunnerHarness(t, nil)
	var got Reason
	h.runner.terminate = func(reason Reason) error {
		got = reason
		h.terminate.Add(1)
		return nil
	}

	require.NoError(t, h.runner.Start(context.Background(), deadlineIn(SystemClock, 150*time.Millisecond)))
	waitDone(t, h.runner)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), h.terminate.Load())
	assert.Equal(t, ReasonDeadline, got)
	assert.True(t, h.runner.Terminating())
	assert.Equal(t, StateFired, h.runner.Status().State)
	assert.False(t, h.runner.Cancel())
	select {
	case code := <-h.exitCode:
		t.Fatalf("unexpected forced exit %d", code)
	default:
	}
}

func TestRunner_AnnouncesETAAndTicks(t *testing.T) {
	h := newRunnerHarness(t, nil)
	d := deadlineIn(SystemClock, 150*time.Millisecond)
	require.NoError(t, h.runner.Start(context.Background(), d))

	etas := h.display.ETAs()
	require.Len(t, etas, 1)
	assert.Equal(t, d.Wall, etas[0].At)
	assert.Equal(t, 150*time.Millisecond, etas[0].Total)
	assert.NotEmpty(t, etas[0].Label)

	require.Eventually(t, func() bool { return len(h.display.Ticks()) >= 2 }, time.Second, 5*time.Millisecond)

	st := h.runner.Status()
	if st.State == StateArmed {
		assert.LessOrEqual(t, st.Remaining, 150*time.Millisecond)
		assert.Equal(t, 20*time.Millisecond, st.Cadence)
	}
	waitDone(t, h.runner)
}

func TestRunner_NoTicksAfterTermination(t *testing.T) {
	h := newRunnerHarness(t, nil)
	require.NoError(t, h.runner.Start(context.Background(), deadlineIn(SystemClock, 100*time.Millisecond)))
	waitDone(t, h.runner)

	n := len(h.display.Ticks())
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, n, len(h.display.Ticks()))
}

func TestRunner_CancelBeforeDeadline(t *testing.T) {
	h := newRunnerHarness(t, nil)
	require.NoError(t, h.runner.Start(context.Background(), deadlineIn(SystemClock, 300*time.Millisecond)))

	assert.True(t, h.runner.Cancel())
	assert.False(t, h.runner.Cancel())
	waitDone(t, h.runner)

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(0), h.terminate.Load())
	assert.Equal(t, StateCanceled, h.runner.Status().State)
	assert.False(t, h.runner.Terminating())
}

func TestRunner_ContextCancelStopsRun(t *testing.T) {
	h := newRunnerHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.runner.Start(ctx, deadlineIn(SystemClock, time.Minute)))

	cancel()
	waitDone(t, h.runner)
	assert.Equal(t, StateCanceled, h.runner.Status().State)
	assert.Equal(t, int32(0), h.terminate.Load())
}

func TestRunner_CancelIdleRunner(t *testing.T) {
	h := newRunnerHarness(t, nil)
	assert.False(t, h.runner.Cancel())
	assert.Equal(t, StateIdle, h.runner.Status().State)
}

func TestRunner_StartTwice(t *testing.T) {
	h := newRunnerHarness(t, nil)
	d := deadlineIn(SystemClock, time.Minute)
	require.NoError(t, h.runner.Start(context.Background(), d))
	assert.ErrorIs(t, h.runner.Start(context.Background(), d), ErrAlreadyStarted)
	h.runner.Cancel()
}

func TestRunner_PassedDeadlineFiresImmediately(t *testing.T) {
	h := newRunnerHarness(t, nil)
	now := time.Now()
	d := Deadline{Mono: now, Wall: now.Round(0), Armed: now}
	require.NoError(t, h.runner.Start(context.Background(), d))
	waitDone(t, h.runner)
	assert.Equal(t, int32(1), h.terminate.Load())
}

func TestRunner_SinkErrorForcesExit(t *testing.T) {
	h := newRunnerHarness(t, func(Reason) error { return errors.New("window manager gone") })
	require.NoError(t, h.runner.Start(context.Background(), deadlineIn(SystemClock, 50*time.Millisecond)))

	select {
	case code := <-h.exitCode:
		assert.Equal(t, 1, code)
	case <-time.After(2 * time.Second):
		t.Fatal("no forced exit")
	}
	assert.Equal(t, int32(1), h.terminate.Load())
}

func TestRunner_SinkPanicForcesExit(t *testing.T) {
	h := newRunnerHarness(t, func(Reason) error { panic("boom") })
	require.NoError(t, h.runner.Start(context.Background(), deadlineIn(SystemClock, 50*time.Millisecond)))

	select {
	case code := <-h.exitCode:
		assert.Equal(t, 1, code)
	case <-time.After(2 * time.Second):
		t.Fatal("no forced exit")
	}
}

func TestRunner_MissingSinkForcesExit(t *testing.T) {
	exit := make(chan int, 1)
	r := NewRunner(RunnerOptions{
		Config: fastConfig(),
		Exit:   func(code int) { exit <- code },
		Logger: quietLogger(),
	})
	require.NoError(t, r.Start(context.Background(), deadlineIn(SystemClock, 20*time.Millisecond)))

	select {
	case code := <-exit:
		assert.Equal(t, 1, code)
	case <-time.After(2 * time.Second):
		t.Fatal("no forced exit")
	}
}

type panickingDisplay struct {
	calls atomic.Int32
}

func (d *panickingDisplay) ETAChanged(ETA) {
	d.calls.Add(1)
	panic("renderer broke")
}

func (d *panickingDisplay) Update(Tick) {
	d.calls.Add(1)
	panic("renderer broke")
}

func (d *panickingDisplay) CadenceChanged(time.Duration) {
	d.calls.Add(1)
	panic("renderer broke")
}

func TestRunner_PanickingDisplayStillTerminates(t *testing.T) {
	var terminated atomic.Int32
	exitCode := make(chan int, 1)
	disp := &panickingDisplay{}
	r := NewRunner(RunnerOptions{
		Config:  fastConfig(),
		Display: disp,
		Terminate: func(Reason) error {
			terminated.Add(1)
			return nil
		},
		Exit:   func(code int) { exitCode <- code },
		Logger: quietLogger(),
	})

	require.NoError(t, r.Start(context.Background(), deadlineIn(SystemClock, 150*time.Millisecond)))
	waitDone(t, r)

	assert.Equal(t, int32(1), terminated.Load())
	assert.Equal(t, StateFired, r.Status().State)
	assert.Greater(t, disp.calls.Load(), int32(1))
	select {
	case code := <-exitCode:
		t.Fatalf("unexpected forced exit %d", code)
	default:
	}
}

func TestRunner_SchedulerReportsFiredAfterDeadline(t *testing.T) {
	h := newRunnerHarness(t, nil)
	require.NoError(t, h.runner.Start(context.Background(), deadlineIn(SystemClock, 100*time.Millisecond)))
	waitDone(t, h.runner)

	require.Eventually(t, func() bool { return h.runner.sched.State() == StateFired }, time.Second, 5*time.Millisecond)
}

func TestRunner_SchedulerReportsCanceledAfterCancel(t *testing.T) {
	h := newRunnerHarness(t, nil)
	require.NoError(t, h.runner.Start(context.Background(), deadlineIn(SystemClock, time.Hour)))
	require.True(t, h.runner.Cancel())

	require.Eventually(t, func() bool { return h.runner.sched.State() == StateCanceled }, time.Second, 5*time.Millisecond)
}
