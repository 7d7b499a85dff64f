package ibus

import (
	"context"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Mode selects how the engine process registers with the IBus daemon.
type Mode int

const (
	// ManagedByIBus is used when the IBus daemon spawns this process from
	// the installed component file; the process claims the well-known bus
	// name the daemon expects.
	ManagedByIBus Mode = iota

	// SelfRegistered is used when the process is started by the user or a
	// session manager; it publishes a component descriptor so the daemon
	// can discover the engine.
	SelfRegistered
)

// Init failure codes. Each stage of the bus bring-up fails with its own
// exit code so service logs pinpoint what broke.
const (
	InitOK            = 0
	InitErrBusCreate  = 1
	InitErrNotRunning = 2
	InitErrTransport  = 3
	InitErrFactory    = 4
)

// lifecycle holds the process-wide bus and factory handles. Written once
// by Init, cleared by Cleanup; engine dispatch reads happen on the
// connection's delivery goroutine.
var lifecycle struct {
	mu       sync.Mutex
	bus      busConn
	factory  *factory
	signals  chan *dbus.Signal
	loopDone chan struct{}
	loopOnce sync.Once
}

// Init brings up the connection to the IBus daemon and registers the dikt
// engine. Returns 0 on success or a staged failure code; callbacks must be
// installed beforehand. Idempotent resources (address resolution) are
// reused across calls.
func Init(mode Mode) int {
	addr, err := ResolveAddress()
	if err != nil {
		logger.Error("failed to create IBus bus", "error", err)
		return InitErrBusCreate
	}

	conn, err := dialBus(addr)
	if err != nil {
		logger.Error("failed to create IBus bus", "error", err)
		return InitErrBusCreate
	}

	if err := conn.Auth(nil); err != nil {
		logger.Error("IBus daemon not running", "error", err)
		conn.Close()
		return InitErrNotRunning
	}

	if err := conn.Hello(); err != nil {
		logger.Error("IBus bus has no connection", "error", err)
		conn.Close()
		return InitErrTransport
	}

	f := &factory{conn: conn}
	if err := conn.Export(f, factoryPath, factoryInterface); err != nil {
		logger.Error("failed to create IBus factory", "error", err)
		conn.Close()
		return InitErrFactory
	}

	signals := make(chan *dbus.Signal, 16)
	loopDone := make(chan struct{})
	conn.Signal(signals)
	go watchDisconnect(signals, loopDone)

	lifecycle.mu.Lock()
	lifecycle.bus = conn
	lifecycle.factory = f
	lifecycle.signals = signals
	lifecycle.loopDone = loopDone
	lifecycle.loopOnce = sync.Once{}
	lifecycle.mu.Unlock()

	switch mode {
	case SelfRegistered:
		registerComponent(conn)
	default:
		requestBusName(conn)
	}

	return InitOK
}

// watchDisconnect ends the main loop when the daemon drops the connection.
func watchDisconnect(signals chan *dbus.Signal, loopDone chan struct{}) {
	for sig := range signals {
		if sig.Name == disconnectedSignal {
			logger.Warn("IBus bus disconnected, stopping main loop")
			closeLoop(loopDone)
			return
		}
	}
}

func closeLoop(loopDone chan struct{}) {
	lifecycle.mu.Lock()
	defer lifecycle.mu.Unlock()
	if lifecycle.loopDone == loopDone {
		lifecycle.loopOnce.Do(func() { close(loopDone) })
	}
}

// requestBusName claims the well-known name in IBus-managed mode. An
// unexpected reply is only a warning; the factory is already registered
// and the daemon can still reach it.
func requestBusName(conn busConn) {
	reply, err := conn.RequestName(BusName, 0)
	if err != nil {
		logger.Warn("failed to acquire IBus name", "error", err)
		return
	}
	switch reply {
	// InQueue is what a zero-flags request yields when another owner
	// holds the name; both outcomes leave the daemon able to reach the
	// factory, so neither is worth a diagnostic.
	case dbus.RequestNameReplyPrimaryOwner, dbus.RequestNameReplyInQueue:
	default:
		logger.Warn("failed to acquire IBus name", "reply", uint32(reply))
	}
}

// registerComponent publishes the component descriptor in self-registered
// mode. No reference to the descriptor is kept afterwards.
func registerComponent(conn busConn) {
	call := conn.Object(ibusService, ibusPath).Call(
		ibusInterface+".RegisterComponent", 0, dbus.MakeVariant(diktComponent()))
	if call.Err != nil {
		logger.Warn("component registration failed", "error", call.Err)
	}
}

// Run blocks in the engine main loop until the bus disconnects, Stop is
// called, or ctx is canceled.
func Run(ctx context.Context) {
	lifecycle.mu.Lock()
	loopDone := lifecycle.loopDone
	lifecycle.mu.Unlock()
	if loopDone == nil {
		return
	}
	select {
	case <-ctx.Done():
	case <-loopDone:
	}
}

// Stop requests the main loop to exit without tearing the bus down.
func Stop() {
	lifecycle.mu.Lock()
	loopDone := lifecycle.loopDone
	lifecycle.mu.Unlock()
	if loopDone != nil {
		closeLoop(loopDone)
	}
}

// Cleanup releases the factory and bus. Safe to call after a failed Init
// and safe to call twice; only resources still held are released.
func Cleanup() {
	lifecycle.mu.Lock()
	bus := lifecycle.bus
	signals := lifecycle.signals
	lifecycle.bus = nil
	lifecycle.factory = nil
	lifecycle.signals = nil
	lifecycle.loopDone = nil
	lifecycle.mu.Unlock()

	if bus == nil {
		return
	}
	if signals != nil {
		bus.RemoveSignal(signals)
		// No sender remains after RemoveSignal; closing lets the
		// disconnect watcher exit.
		close(signals)
	}
	bus.Export(nil, factoryPath, factoryInterface)
	bus.Close()
}

// currentBus returns the lifecycle bus when it is present and connected.
func currentBus() busConn {
	lifecycle.mu.Lock()
	bus := lifecycle.bus
	lifecycle.mu.Unlock()
	if bus == nil || !bus.Connected() {
		return nil
	}
	return bus
}

// SetGlobalEngine switches the system-wide active engine through the
// engine process's bus. Returns false when the bus is absent, disconnected,
// or the name is empty.
func SetGlobalEngine(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	bus := currentBus()
	if bus == nil {
		return false
	}
	return setGlobalEngineOn(bus, name)
}

// GlobalEngineName reports the system-wide active engine through the
// engine process's bus.
func GlobalEngineName() (string, bool) {
	bus := currentBus()
	if bus == nil {
		return "", false
	}
	return globalEngineNameOn(bus)
}

func setGlobalEngineOn(bus busConn, name string) bool {
	call := bus.Object(ibusService, ibusPath).Call(ibusInterface+".SetGlobalEngine", 0, name)
	return call.Err == nil
}

func globalEngineNameOn(bus busConn) (string, bool) {
	call := bus.Object(ibusService, ibusPath).Call(ibusInterface+".GetGlobalEngine", 0)
	if call.Err != nil || len(call.Body) == 0 {
		return "", false
	}
	v, ok := call.Body[0].(dbus.Variant)
	if !ok {
		return "", false
	}
	return parseEngineDescName(v)
}
