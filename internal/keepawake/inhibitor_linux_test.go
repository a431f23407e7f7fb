//go:build linux

package keepawake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	hostErrors "github.com/stayawake/stay-awake/internal/errors"
)

type fakeBusObject struct {
	dbus.BusObject
	method string
	args   []interface{}
	reply  *dbus.Call
}

func (o *fakeBusObject) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	o.method = method
	o.args = args
	return o.reply
}

type fakeBus struct {
	obj    *fakeBusObject
	ctx    context.Context
	closed bool
}

func (b *fakeBus) Object(dest string, path dbus.ObjectPath) dbus.BusObject { return b.obj }
func (b *fakeBus) Context() context.Context                              { return b.ctx }
func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

func newPipeFD(t *testing.T) int {
	t.Helper()
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() { _ = unix.Close(p[1]) })
	return p[0]
}

func TestLogindAcquireAndRelease(t *testing.T) {
	fd := newPipeFD(t)
	bus := &fakeBus{
		obj: &fakeBusObject{reply: &dbus.Call{Body: []interface{}{dbus.UnixFD(fd)}}},
		ctx: context.Background(),
	}
	adapter := &logindAdapter{dial: func() (busConn, error) { return bus, nil }}

	h, err := adapter.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	if bus.obj.method != logindInhibit {
		t.Fatalf("method=%s", bus.obj.method)
	}
	if what := bus.obj.args[0]; what != "sleep:idle" {
		t.Fatalf("what=%v want sleep:idle", what)
	}
	if mode := bus.obj.args[3]; mode != "block" {
		t.Fatalf("mode=%v want block", mode)
	}

	if err := h.Release(context.Background()); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after release")
	}
	if h.Err() != nil {
		t.Fatalf("Err after release = %v", h.Err())
	}
	if !bus.closed {
		t.Fatal("bus connection not closed")
	}
	if err := unix.Close(fd); !errors.Is(err, unix.EBADF) {
		t.Fatalf("inhibitor fd still open: %v", err)
	}
}

func TestLogindBusLossIsIntegrityError(t *testing.T) {
	fd := newPipeFD(t)
	ctx, cancel := context.WithCancel(context.Background())
	bus := &fakeBus{
		obj: &fakeBusObject{reply: &dbus.Call{Body: []interface{}{dbus.UnixFD(fd)}}},
		ctx: ctx,
	}
	adapter := &logindAdapter{dial: func() (busConn, error) { return bus, nil }}

	h, err := adapter.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire error: %v", err)
	}
	cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("handle did not notice bus loss")
	}
	if h.Err() == nil {
		t.Fatal("expected error after bus loss")
	}
}

func TestLogindNoBusIsUnsupported(t *testing.T) {
	adapter := &logindAdapter{dial: func() (busConn, error) { return nil, errors.New("no such file") }}
	_, err := adapter.Acquire(context.Background())
	if got := hostErrors.GetCode(err); got != hostErrors.CodeKeepAwakeUnsupportedEnvironment {
		t.Fatalf("code=%s", got)
	}
}

func TestLogindErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"service unknown", dbus.Error{Name: "org.freedesktop.DBus.Error.ServiceUnknown"}, hostErrors.CodeKeepAwakeUnsupportedEnvironment},
		{"access denied", dbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"}, hostErrors.CodeKeepAwakeAcquireFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := &fakeBus{obj: &fakeBusObject{reply: &dbus.Call{Err: tt.err}}, ctx: context.Background()}
			adapter := &logindAdapter{dial: func() (busConn, error) { return bus, nil }}

			_, err := adapter.Acquire(context.Background())
			if got := hostErrors.GetCode(err); got != tt.want {
				t.Fatalf("code=%s want %s", got, tt.want)
			}
			if !bus.closed {
				t.Fatal("bus connection leaked")
			}
		})
	}
}
