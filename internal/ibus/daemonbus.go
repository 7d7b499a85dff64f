package ibus

import (
	"strings"
	"sync"
)

// The daemon process switches the global engine in response to a user
// hotkey, racing the user's next keystrokes in the old engine. Dialing the
// IBus bus costs 50-200ms, enough to lose that race, so the daemon keeps
// one cached connection and only re-dials after observing a disconnect.
//
// The cache is only touched from the daemon's event goroutine; the mutex
// exists for the one-shot address bootstrap and for tests.
var daemonCache struct {
	mu           sync.Mutex
	bootstrapped bool
	bus          busConn
}

// daemonBus returns the cached daemon connection, re-dialing if the cached
// one was never opened or has disconnected. Returns nil when the bus
// cannot be reached; the next call retries.
func daemonBus() busConn {
	daemonCache.mu.Lock()
	defer daemonCache.mu.Unlock()

	if !daemonCache.bootstrapped {
		ensureDaemonAddress()
		daemonCache.bootstrapped = true
	}

	if daemonCache.bus != nil && daemonCache.bus.Connected() {
		return daemonCache.bus
	}

	if daemonCache.bus != nil {
		daemonCache.bus.Close()
		daemonCache.bus = nil
	}

	bus, err := openBus()
	if err != nil {
		return nil
	}
	if !bus.Connected() {
		bus.Close()
		return nil
	}

	daemonCache.bus = bus
	return bus
}

// ResetDaemonBusCache drops the cached daemon connection and re-runs the
// address bootstrap on the next call. Used when the IBus daemon restarts
// under a new address.
func ResetDaemonBusCache() {
	daemonCache.mu.Lock()
	defer daemonCache.mu.Unlock()
	if daemonCache.bus != nil {
		daemonCache.bus.Close()
		daemonCache.bus = nil
	}
	daemonCache.bootstrapped = false
}

// DaemonSetGlobalEngine switches the system-wide active engine from the
// daemon process. Rejects empty names without touching the bus.
func DaemonSetGlobalEngine(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	bus := daemonBus()
	if bus == nil {
		return false
	}
	return setGlobalEngineOn(bus, name)
}

// DaemonGlobalEngineName reports the system-wide active engine from the
// daemon process.
func DaemonGlobalEngineName() (string, bool) {
	bus := daemonBus()
	if bus == nil {
		return "", false
	}
	return globalEngineNameOn(bus)
}
