package keepawake

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

const (
	defaultAcquireAttempts = 3
	defaultAcquireInterval = 250 * time.Millisecond
)

// Manager owns the keep-awake state and inhibitor lifecycle.
type Manager struct {
	mu sync.Mutex

	adapter  Adapter
	now      func() time.Time
	log      *slog.Logger
	attempts int
	interval time.Duration
	onChange func(Status)

	status  Status
	handle  Handle
	closed  bool
	monitor uint64
}

// NewManager creates a keep-awake manager with the given adapter.
func NewManager(adapter Adapter, opts Options) *Manager {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := opts.AcquireAttempts
	if attempts <= 0 {
		attempts = defaultAcquireAttempts
	}
	interval := opts.AcquireInterval
	if interval <= 0 {
		interval = defaultAcquireInterval
	}

	return &Manager{
		adapter:  adapter,
		now:      nowFn,
		log:      logger.With("component", "keepawake"),
		attempts: attempts,
		interval: interval,
		onChange: opts.OnChange,
		status: Status{
			State:     StateOff,
			UpdatedAt: nowFn(),
		},
	}
}

// Snapshot returns a copy of current keep-awake state.
func (m *Manager) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetDesiredEnabled reconciles runtime state to the desired keep-awake value.
func (m *Manager) SetDesiredEnabled(ctx context.Context, enabled bool) Status {
	if enabled {
		return m.enable(ctx)
	}
	return m.disable(ctx)
}

// Close releases held resources and blocks until the release attempt completes.
// The manager cannot be re-enabled afterwards.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.status.DesiredEnabled = false

	h := m.handle
	m.handle = nil
	m.monitor++
	m.transitionLocked(StateOff, "", "")
	st := m.status
	m.mu.Unlock()
	m.notify(st)

	if h == nil {
		return nil
	}

	if err := h.Release(ctx); err != nil {
		m.mu.Lock()
		m.recordLifecycleErrorLocked(err.Error())
		m.mu.Unlock()
		m.log.Warn("keep-awake release failed", "error", err)
		return err
	}
	m.log.Info("normal power management restored")
	return nil
}

func (m *Manager) enable(ctx context.Context) Status {
	m.mu.Lock()
	if m.closed {
		defer m.mu.Unlock()
		return m.status
	}

	if m.status.DesiredEnabled && m.status.State == StateOn && m.handle != nil {
		// Fast path. A handle that already exited counts as integrity loss
		// and is reacquired below.
		select {
		case <-m.handle.Done():
			msg := "inhibitor exited unexpectedly"
			if err := m.handle.Err(); err != nil {
				msg = err.Error()
			}
			m.handle = nil
			m.monitor++
			m.transitionLocked(StateDegraded, DegradedReasonIntegrityLost, msg)
		default:
			defer m.mu.Unlock()
			return m.status
		}
	}

	m.status.DesiredEnabled = true
	m.transitionLocked(StatePending, "", "")
	pending := m.status
	m.mu.Unlock()
	m.notify(pending)

	h, err := m.acquire(ctx)
	if err != nil {
		m.mu.Lock()
		reason := classifyAcquireReason(err)
		m.transitionLocked(StateDegraded, reason, err.Error())
		st := m.status
		m.mu.Unlock()
		m.log.Warn("keep-awake degraded, system may sleep", "reason", reason, "error", err)
		m.notify(st)
		return st
	}

	m.mu.Lock()
	if !m.status.DesiredEnabled || m.closed {
		m.mu.Unlock()
		_ = h.Release(context.Background())
		m.mu.Lock()
		m.transitionLocked(StateOff, "", "")
		st := m.status
		m.mu.Unlock()
		m.notify(st)
		return st
	}

	m.handle = h
	m.monitor++
	gen := m.monitor
	m.transitionLocked(StateOn, "", "")
	st := m.status
	m.mu.Unlock()

	m.log.Info("keep-awake active")
	m.notify(st)
	go m.watchHandle(h, gen)
	return st
}

// acquire retries transient adapter failures with exponential backoff. An
// unsupported environment is final and returned on the first attempt.
func (m *Manager) acquire(ctx context.Context) (Handle, error) {
	var h Handle
	var final error

	op := func() error {
		got, err := m.adapter.Acquire(ctx)
		if err != nil {
			if hostErrors.IsCode(err, hostErrors.CodeKeepAwakeUnsupportedEnvironment) {
				final = err
				return nil
			}
			return err
		}
		h = got
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.interval
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.attempts-1)), ctx)
	notify := func(err error, wait time.Duration) {
		m.log.Debug("keep-awake acquire failed, retrying", "error", err, "wait", wait)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if hostErrors.GetCode(err) == hostErrors.CodeUnknown {
			err = hostErrors.Wrap(hostErrors.CodeKeepAwakeAcquireFailed, "failed to acquire sleep inhibitor", err)
		}
		return nil, err
	}
	if final != nil {
		return nil, final
	}
	if h == nil {
		return nil, hostErrors.New(hostErrors.CodeKeepAwakeAcquireFailed, "adapter returned no inhibitor")
	}
	return h, nil
}

func (m *Manager) disable(ctx context.Context) Status {
	m.mu.Lock()
	if m.closed {
		defer m.mu.Unlock()
		return m.status
	}

	m.status.DesiredEnabled = false
	h := m.handle
	m.handle = nil
	m.monitor++
	m.transitionLocked(StateOff, "", "")
	st := m.status
	m.mu.Unlock()
	m.notify(st)

	if h == nil {
		return st
	}

	if err := h.Release(ctx); err != nil {
		m.mu.Lock()
		m.recordLifecycleErrorLocked(err.Error())
		st = m.status
		m.mu.Unlock()
		m.log.Warn("keep-awake release failed", "error", err)
		return st
	}

	return st
}

func (m *Manager) watchHandle(h Handle, gen uint64) {
	<-h.Done()

	m.mu.Lock()
	if m.handle != h || m.monitor != gen || !m.status.DesiredEnabled || m.closed {
		m.mu.Unlock()
		return
	}

	msg := "inhibitor exited unexpectedly"
	if err := h.Err(); err != nil {
		msg = err.Error()
	}

	m.handle = nil
	m.transitionLocked(StateDegraded, DegradedReasonIntegrityLost, msg)
	st := m.status
	m.mu.Unlock()

	m.log.Warn("keep-awake inhibitor lost", "error", msg)
	m.notify(st)
}

func (m *Manager) transitionLocked(next State, reason DegradedReason, lastErr string) {
	m.status.State = next
	m.status.Reason = reason
	m.status.LastError = lastErr
	m.status.UpdatedAt = m.now()
	m.status.Revision++
}

func (m *Manager) recordLifecycleErrorLocked(lastErr string) {
	// Explicit disable/close settles at OFF but keeps the release failure.
	m.status.Reason = ""
	m.status.LastError = lastErr
	m.status.UpdatedAt = m.now()
	m.status.Revision++
}

func (m *Manager) notify(st Status) {
	if m.onChange != nil {
		m.onChange(st)
	}
}

func classifyAcquireReason(err error) DegradedReason {
	if hostErrors.IsCode(err, hostErrors.CodeKeepAwakeUnsupportedEnvironment) {
		return DegradedReasonUnsupportedEnvironment
	}
	return DegradedReasonAcquireFailed
}
