// Package ibus hosts the Dikt input engine inside the IBus framework.
//
// It speaks the IBus daemon's D-Bus protocol directly: the engine process
// connects to the daemon's private bus, exports a factory that instantiates
// "dikt" engine objects on demand, and relays the daemon's engine callbacks
// (key events, focus changes, enable/disable, reset) into host-installed
// callbacks. A second, independently cached connection serves global
// engine-switch operations issued from the long-running dikt daemon.
package ibus

import (
	"log/slog"

	"github.com/godbus/dbus/v5"
)

// Version is stamped at build time via -ldflags and embedded into the
// component descriptor published to IBus.
var Version = "unknown"

// Framework-side names. These are fixed by the IBus protocol and by the
// descriptors the dikt engine registers under.
const (
	EngineName = "dikt"

	BusName = "org.freedesktop.IBus.Dikt"

	ibusService   = "org.freedesktop.IBus"
	ibusInterface = "org.freedesktop.IBus"

	factoryInterface = "org.freedesktop.IBus.Factory"
	engineInterface  = "org.freedesktop.IBus.Engine"
	serviceInterface = "org.freedesktop.IBus.Service"

	ibusPath         = dbus.ObjectPath("/org/freedesktop/IBus")
	factoryPath      = dbus.ObjectPath("/org/freedesktop/IBus/Factory")
	enginePathPrefix = "/org/freedesktop/IBus/Engine/Dikt/"

	disconnectedSignal = "org.freedesktop.DBus.Local.Disconnected"
)

var logger = slog.Default()

// SetLogger replaces the package logger. Diagnostics keep going to stderr
// by default, matching the engine's behavior when run by the IBus daemon.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// busConn is the subset of *dbus.Conn this package uses. Tests substitute
// a mock; production code always wraps a real connection to the IBus bus.
type busConn interface {
	Auth(methods []dbus.Auth) error
	Hello() error
	Connected() bool
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

// dialBus opens a raw, unauthenticated connection to the given bus address.
// The lifecycle init sequence drives Auth and Hello itself so each stage
// can fail with its own code. Swapped out by tests.
var dialBus = func(address string) (busConn, error) {
	return dbus.Dial(address)
}

// openBus resolves the IBus address and returns a fully established
// connection. Used by the daemon bus cache, where the staged failure codes
// do not apply. Swapped out by tests.
var openBus = func() (busConn, error) {
	addr, err := ResolveAddress()
	if err != nil {
		return nil, err
	}
	conn, err := dialBus(addr)
	if err != nil {
		return nil, err
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
