//go:build linux

package keepawake

import (
	"context"
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

const (
	logindDest   = "org.freedesktop.login1"
	logindPath   = dbus.ObjectPath("/org/freedesktop/login1")
	logindInhibit = "org.freedesktop.login1.Manager.Inhibit"
)

// NewDefaultAdapter returns the Linux adapter, which takes a systemd-logind
// "block" inhibitor lock on sleep and idle over the system bus.
func NewDefaultAdapter() Adapter {
	return &logindAdapter{connect: dbus.ConnectSystemBus}
}

// busConn is the subset of *dbus.Conn the adapter uses.
type busConn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Context() context.Context
	Close() error
}

type logindAdapter struct {
	connect func(opts ...dbus.ConnOption) (*dbus.Conn, error)
	dial    func() (busConn, error)
}

func (a *logindAdapter) open() (busConn, error) {
	if a.dial != nil {
		return a.dial()
	}
	conn, err := a.connect()
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (a *logindAdapter) Acquire(ctx context.Context) (Handle, error) {
	conn, err := a.open()
	if err != nil {
		return nil, hostErrors.Wrap(hostErrors.CodeKeepAwakeUnsupportedEnvironment, "system bus is unavailable", err)
	}

	var fd dbus.UnixFD
	call := conn.Object(logindDest, logindPath).CallWithContext(ctx, logindInhibit, 0,
		"sleep:idle", "stay-awake", "auto-quit countdown running", "block")
	if err := call.Store(&fd); err != nil {
		_ = conn.Close()
		if dbusErrorName(err) == "org.freedesktop.DBus.Error.ServiceUnknown" {
			return nil, hostErrors.Wrap(hostErrors.CodeKeepAwakeUnsupportedEnvironment, "systemd-logind is not running", err)
		}
		return nil, hostErrors.Wrap(hostErrors.CodeKeepAwakeAcquireFailed, "logind refused inhibitor lock", err)
	}

	h := &fdHandle{conn: conn, fd: int(fd), done: make(chan struct{})}
	go h.watch()
	return h, nil
}

func dbusErrorName(err error) string {
	var byValue dbus.Error
	if errors.As(err, &byValue) {
		return byValue.Name
	}
	var byPtr *dbus.Error
	if errors.As(err, &byPtr) {
		return byPtr.Name
	}
	return ""
}

// fdHandle holds a logind inhibitor; the lock lasts until the fd is closed.
type fdHandle struct {
	conn busConn
	fd   int

	mu       sync.Mutex
	done     chan struct{}
	err      error
	released bool
	once     sync.Once
}

func (h *fdHandle) watch() {
	select {
	case <-h.conn.Context().Done():
	case <-h.done:
		return
	}
	h.finish(errors.New("system bus connection lost"))
}

func (h *fdHandle) finish(err error) {
	h.once.Do(func() {
		h.mu.Lock()
		if h.released {
			err = nil
		}
		h.err = err
		h.mu.Unlock()

		_ = unix.Close(h.fd)
		_ = h.conn.Close()
		close(h.done)
	})
}

func (h *fdHandle) Done() <-chan struct{} { return h.done }

func (h *fdHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *fdHandle) Release(ctx context.Context) error {
	h.mu.Lock()
	h.released = true
	h.mu.Unlock()
	h.finish(nil)
	return nil
}
