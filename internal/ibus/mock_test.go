package ibus

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/godbus/dbus/v5"
)

// mockBus implements busConn for tests. Call results are keyed by full
// method name; unset methods succeed with an empty body.
type mockBus struct {
	mu sync.Mutex

	authErr   error
	helloErr  error
	exportErr error

	connected bool
	closed    bool

	exports map[string]interface{}

	requestNameReply dbus.RequestNameReply
	requestNameErr   error
	requestedNames   []string

	signalChans []chan<- *dbus.Signal

	emitted []emittedSignal
	calls   []objectCall

	callResults map[string]*dbus.Call
}

type emittedSignal struct {
	path   dbus.ObjectPath
	name   string
	values []interface{}
}

type objectCall struct {
	dest   string
	path   dbus.ObjectPath
	method string
	args   []interface{}
}

func newMockBus() *mockBus {
	return &mockBus{
		connected:        true,
		requestNameReply: dbus.RequestNameReplyPrimaryOwner,
		exports:          make(map[string]interface{}),
		callResults:      make(map[string]*dbus.Call),
	}
}

func (m *mockBus) Auth(methods []dbus.Auth) error { return m.authErr }
func (m *mockBus) Hello() error                   { return m.helloErr }

func (m *mockBus) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected && !m.closed
}

func (m *mockBus) setConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

func (m *mockBus) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	return &mockObject{bus: m, dest: dest, path: path}
}

func (m *mockBus) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	if m.exportErr != nil {
		return m.exportErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(path) + ":" + iface
	if v == nil {
		delete(m.exports, key)
	} else {
		m.exports[key] = v
	}
	return nil
}

func (m *mockBus) exported(path dbus.ObjectPath, iface string) interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exports[string(path)+":"+iface]
}

func (m *mockBus) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitted = append(m.emitted, emittedSignal{path: path, name: name, values: values})
	return nil
}

func (m *mockBus) RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestedNames = append(m.requestedNames, name)
	return m.requestNameReply, m.requestNameErr
}

func (m *mockBus) Signal(ch chan<- *dbus.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signalChans = append(m.signalChans, ch)
}

func (m *mockBus) RemoveSignal(ch chan<- *dbus.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.signalChans {
		if existing == ch {
			m.signalChans = append(m.signalChans[:i], m.signalChans[i+1:]...)
			return
		}
	}
}

func (m *mockBus) deliverDisconnect() {
	m.mu.Lock()
	chans := append([]chan<- *dbus.Signal(nil), m.signalChans...)
	m.connected = false
	m.mu.Unlock()
	for _, ch := range chans {
		ch <- &dbus.Signal{Name: disconnectedSignal}
	}
}

func (m *mockBus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockBus) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockBus) recordedCalls(method string) []objectCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []objectCall
	for _, c := range m.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockBus) setCallResult(method string, call *dbus.Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callResults[method] = call
}

type mockObject struct {
	bus  *mockBus
	dest string
	path dbus.ObjectPath
}

func (o *mockObject) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	o.bus.mu.Lock()
	o.bus.calls = append(o.bus.calls, objectCall{
		dest: o.dest, path: o.path, method: method, args: args,
	})
	result := o.bus.callResults[method]
	o.bus.mu.Unlock()
	if result != nil {
		return result
	}
	return &dbus.Call{Body: []interface{}{}}
}

func (o *mockObject) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	return o.Call(method, flags, args...)
}

func (o *mockObject) Go(method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	return o.Call(method, flags, args...)
}

func (o *mockObject) GoWithContext(ctx context.Context, method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	return o.Call(method, flags, args...)
}

func (o *mockObject) AddMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (o *mockObject) RemoveMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (o *mockObject) GetProperty(p string) (dbus.Variant, error) {
	return dbus.Variant{}, errors.New("not implemented")
}

func (o *mockObject) StoreProperty(p string, value interface{}) error {
	return errors.New("not implemented")
}

func (o *mockObject) SetProperty(p string, v interface{}) error {
	return errors.New("not implemented")
}

func (o *mockObject) Destination() string   { return o.dest }
func (o *mockObject) Path() dbus.ObjectPath { return o.path }

// engineDescBody builds the decoded wire form of an IBusEngineDesc, the
// shape GetGlobalEngine responses arrive in.
func engineDescBody(name string) dbus.Variant {
	return dbus.MakeVariant([]interface{}{
		"IBusEngineDesc",
		map[string]dbus.Variant{},
		name, "Long", "Desc", "other", "MIT", "Author", "icon", "default",
		uint32(0), "", "", "", "", "", "", "",
	})
}

// resetPackageState clears the process-wide handles between tests.
func resetPackageState(t *testing.T) {
	t.Helper()

	installed.Store(nil)

	lifecycle.mu.Lock()
	lifecycle.bus = nil
	lifecycle.factory = nil
	lifecycle.signals = nil
	lifecycle.loopDone = nil
	lifecycle.mu.Unlock()

	daemonCache.mu.Lock()
	daemonCache.bus = nil
	daemonCache.bootstrapped = false
	daemonCache.mu.Unlock()

	origDial, origOpen := dialBus, openBus
	t.Cleanup(func() {
		dialBus, openBus = origDial, origOpen
		installed.Store(nil)
		Cleanup()
		ResetDaemonBusCache()
	})
}

// captureLogger routes package diagnostics into a buffer for the test.
func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := logger
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { logger = prev })
	return &buf
}

// useMockDial routes Init's dial through the given mock.
func useMockDial(t *testing.T, m *mockBus) {
	t.Helper()
	t.Setenv("IBUS_ADDRESS", "unix:path=/tmp/ibus-mock")
	dialBus = func(address string) (busConn, error) { return m, nil }
}

// useMockOpen routes the daemon bus cache through the given dialer.
func useMockOpen(t *testing.T, open func() (busConn, error)) {
	t.Helper()
	t.Setenv("IBUS_ADDRESS", "unix:path=/tmp/ibus-mock")
	openBus = open
}
