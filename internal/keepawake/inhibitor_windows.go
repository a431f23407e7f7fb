//go:build windows

package keepawake

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sys/windows"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

const (
	esContinuous     = 0x80000000
	esSystemRequired = 0x00000001
)

var procSetThreadExecutionState = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetThreadExecutionState")

// NewDefaultAdapter returns the Windows adapter, which sets
// ES_SYSTEM_REQUIRED on a dedicated locked OS thread.
func NewDefaultAdapter() Adapter {
	return &executionStateAdapter{}
}

type executionStateAdapter struct{}

func (a *executionStateAdapter) Acquire(ctx context.Context) (Handle, error) {
	if err := procSetThreadExecutionState.Find(); err != nil {
		return nil, hostErrors.Wrap(hostErrors.CodeKeepAwakeUnsupportedEnvironment, "SetThreadExecutionState is unavailable", err)
	}

	h := &threadHandle{
		release: make(chan struct{}),
		done:    make(chan struct{}),
	}
	started := make(chan error, 1)
	go h.hold(started)

	select {
	case err := <-started:
		if err != nil {
			return nil, hostErrors.Wrap(hostErrors.CodeKeepAwakeAcquireFailed, "SetThreadExecutionState failed", err)
		}
		return h, nil
	case <-ctx.Done():
		h.stop()
		return nil, hostErrors.Wrap(hostErrors.CodeKeepAwakeAcquireFailed, "acquire canceled", ctx.Err())
	}
}

// threadHandle keeps the execution state on the thread that set it; the
// flag is per-thread, so clearing it must happen on the same thread.
type threadHandle struct {
	release chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (h *threadHandle) hold(started chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(h.done)

	r, _, err := procSetThreadExecutionState.Call(uintptr(esContinuous | esSystemRequired))
	if r == 0 {
		started <- err
		return
	}
	started <- nil

	<-h.release
	procSetThreadExecutionState.Call(uintptr(esContinuous))
}

func (h *threadHandle) stop() {
	h.once.Do(func() { close(h.release) })
}

func (h *threadHandle) Done() <-chan struct{} { return h.done }

func (h *threadHandle) Err() error { return nil }

func (h *threadHandle) Release(ctx context.Context) error {
	h.stop()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
