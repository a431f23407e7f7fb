//go:build darwin

package keepawake

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

// killGrace bounds the wait for caffeinate to be reaped after SIGKILL.
const killGrace = 200 * time.Millisecond

// NewDefaultAdapter holds an idle-sleep assertion through caffeinate.
func NewDefaultAdapter() Adapter {
	pid := os.Getpid()
	return &caffeinateAdapter{
		command: func() *exec.Cmd {
			// -w makes caffeinate exit on its own once pid is gone.
			return exec.Command("caffeinate", "-i", "-w", strconv.Itoa(pid))
		},
	}
}

type caffeinateAdapter struct {
	command func() *exec.Cmd
}

func (a *caffeinateAdapter) Acquire(ctx context.Context) (Handle, error) {
	if a.command == nil {
		return nil, hostErrors.New(hostErrors.CodeKeepAwakeAcquireFailed, "caffeinate runner is unavailable")
	}
	cmd := a.command()
	if err := cmd.Start(); err != nil {
		return nil, startError(err)
	}
	return watchProcess(cmd), nil
}

func startError(err error) error {
	var execErr *exec.Error
	switch {
	case errors.As(err, &execErr), errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return hostErrors.Wrap(hostErrors.CodeKeepAwakeUnsupportedEnvironment, "caffeinate is unavailable", err)
	default:
		return hostErrors.Wrap(hostErrors.CodeKeepAwakeAcquireFailed, "failed to start caffeinate", err)
	}
}

// processHandle keeps the inhibitor for as long as its child runs.
type processHandle struct {
	proc     *os.Process
	exited   chan struct{}
	stopping atomic.Bool

	mu      sync.Mutex
	exitErr error
}

// watchProcess reaps an already started cmd in the background.
func watchProcess(cmd *exec.Cmd) *processHandle {
	h := &processHandle{proc: cmd.Process, exited: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		switch {
		case h.stopping.Load():
			err = nil
		case err == nil:
			err = errors.New("caffeinate exited")
		}
		h.mu.Lock()
		h.exitErr = err
		h.mu.Unlock()
		close(h.exited)
	}()
	return h
}

func (h *processHandle) Done() <-chan struct{} { return h.exited }

func (h *processHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *processHandle) Release(ctx context.Context) error {
	if h.proc == nil {
		return nil
	}
	if h.stopping.CompareAndSwap(false, true) {
		_ = h.proc.Signal(syscall.SIGTERM)
	}

	select {
	case <-h.exited:
		return nil
	case <-ctx.Done():
	}

	_ = h.proc.Kill()
	t := time.NewTimer(killGrace)
	defer t.Stop()
	select {
	case <-h.exited:
	case <-t.C:
	}
	return fmt.Errorf("caffeinate did not exit after SIGTERM: %w", ctx.Err())
}
