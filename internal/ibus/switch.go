package ibus

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// fallbackEngineName is how some distributions list the dikt engine
	// once it is grouped under the "other" language.
	fallbackEngineName = "other:dikt"

	switchPollInterval = 20 * time.Millisecond
	setRetryInterval   = 120 * time.Millisecond
)

// IsDiktEngine reports whether an engine name refers to the dikt engine,
// accounting for language-prefixed listings like "other:dikt".
func IsDiktEngine(name string) bool {
	return name == EngineName || strings.HasSuffix(name, ":dikt")
}

func engineMatchesTarget(current, target string) bool {
	if IsDiktEngine(target) {
		return IsDiktEngine(current)
	}
	return current == target
}

// CurrentEngine returns the system-wide active engine as seen from the
// daemon process, retrying once through a fresh connection when the cached
// one turns out to be stale.
func CurrentEngine() (string, error) {
	name, ok := DaemonGlobalEngineName()
	if !ok {
		ResetDaemonBusCache()
		name, ok = DaemonGlobalEngineName()
	}
	if !ok {
		return "", errors.New("ibus: could not read global engine")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("ibus: IBus returned blank global engine")
	}
	return name, nil
}

func setGlobalEngineRetrying(name string) bool {
	if DaemonSetGlobalEngine(name) {
		return true
	}
	ResetDaemonBusCache()
	return DaemonSetGlobalEngine(name)
}

// SwitchEngineVerified switches the global engine and polls until the
// daemon reports the switch took effect or the timeout elapses. The set is
// re-issued periodically because the IBus daemon occasionally drops a
// switch that races a focus change.
func SwitchEngineVerified(target string, timeout time.Duration) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", errors.New("ibus: target engine name is empty")
	}

	if current, err := CurrentEngine(); err == nil && engineMatchesTarget(current, target) {
		return current, nil
	}

	if timeout <= 0 {
		timeout = switchPollInterval
	}

	deadline := time.Now().Add(timeout)
	var lastSet time.Time
	setAttempts := 0
	lastEngine := ""

	for {
		if time.Since(lastSet) >= setRetryInterval {
			if setGlobalEngineRetrying(target) {
				setAttempts++
			}
			lastSet = time.Now()
		}

		if current, err := CurrentEngine(); err == nil {
			if engineMatchesTarget(current, target) {
				return current, nil
			}
			lastEngine = current
		}

		if time.Now().After(deadline) {
			break
		}
		time.Sleep(switchPollInterval)
	}

	return "", fmt.Errorf("ibus: switch to %q not confirmed within %v (set_attempts=%d last_engine=%q)",
		target, timeout, setAttempts, lastEngine)
}

// SwitchToDiktEngine switches to the dikt engine, trying the plain name
// first and the language-prefixed fallback second.
func SwitchToDiktEngine(timeout time.Duration) (string, error) {
	if current, err := CurrentEngine(); err == nil && IsDiktEngine(current) {
		return current, nil
	}

	var attempts []string
	for _, candidate := range []string{EngineName, fallbackEngineName} {
		engine, err := SwitchEngineVerified(candidate, timeout)
		if err == nil {
			return engine, nil
		}
		attempts = append(attempts, fmt.Sprintf("%s (%v)", candidate, err))
	}

	return "", fmt.Errorf("ibus: failed to switch to dikt input source, tried: %s",
		strings.Join(attempts, ", "))
}
