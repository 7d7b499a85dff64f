// Package toggle registers the global dictation hotkey and turns key
// presses into start/stop toggles on the transcription daemon.
package toggle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.design/x/hotkey"
)

// Manager owns the global hotkey registration.
type Manager struct {
	mu       sync.Mutex
	hk       *hotkey.Hotkey
	active   bool
	onToggle func(active bool)
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewManager creates a manager calling onToggle on every press with the
// flipped dictation state.
func NewManager(onToggle func(active bool)) *Manager {
	return &Manager{
		onToggle: onToggle,
		done:     make(chan struct{}),
	}
}

// Start registers the hotkey and begins listening for presses.
func (m *Manager) Start(ctx context.Context, modifiers []string, key string) error {
	mods, k, err := Parse(modifiers, key)
	if err != nil {
		return fmt.Errorf("invalid hotkey: %w", err)
	}

	m.hk = hotkey.New(mods, k)
	if err := m.hk.Register(); err != nil {
		return fmt.Errorf("register hotkey: %w", err)
	}

	ctx, m.cancel = context.WithCancel(ctx)

	go func() {
		defer close(m.done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-m.hk.Keydown():
				if !ok {
					return
				}
				m.mu.Lock()
				m.active = !m.active
				active := m.active
				m.mu.Unlock()

				if m.onToggle != nil {
					m.onToggle(active)
				}
			}
		}
	}()

	return nil
}

// Stop unregisters the hotkey and stops the listener.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.hk != nil {
		m.hk.Unregister()
	}
	if m.done != nil {
		select {
		case <-m.done:
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Active reports the current toggle state.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Parse converts a modifier list and key name into hotkey values.
func Parse(modifiers []string, key string) ([]hotkey.Modifier, hotkey.Key, error) {
	var mods []hotkey.Modifier
	for _, part := range modifiers {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "ctrl", "control":
			mods = append(mods, hotkey.ModCtrl)
		case "shift":
			mods = append(mods, hotkey.ModShift)
		case "alt":
			mods = append(mods, modAlt())
		case "super", "win", "cmd":
			mods = append(mods, modSuper())
		default:
			return nil, 0, fmt.Errorf("unknown modifier: %s", part)
		}
	}

	k, ok := keyNames[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return nil, 0, fmt.Errorf("unknown key: %s", key)
	}
	return mods, k, nil
}

var keyNames = map[string]hotkey.Key{
	"space":  hotkey.KeySpace,
	"return": hotkey.KeyReturn,
	"enter":  hotkey.KeyReturn,
	"tab":    hotkey.KeyTab,
	"escape": hotkey.KeyEscape,
	"esc":    hotkey.KeyEscape,
	"a":      hotkey.KeyA,
	"b":      hotkey.KeyB,
	"c":      hotkey.KeyC,
	"d":      hotkey.KeyD,
	"e":      hotkey.KeyE,
	"f":      hotkey.KeyF,
	"g":      hotkey.KeyG,
	"h":      hotkey.KeyH,
	"i":      hotkey.KeyI,
	"j":      hotkey.KeyJ,
	"k":      hotkey.KeyK,
	"l":      hotkey.KeyL,
	"m":      hotkey.KeyM,
	"n":      hotkey.KeyN,
	"o":      hotkey.KeyO,
	"p":      hotkey.KeyP,
	"q":      hotkey.KeyQ,
	"r":      hotkey.KeyR,
	"s":      hotkey.KeyS,
	"t":      hotkey.KeyT,
	"u":      hotkey.KeyU,
	"v":      hotkey.KeyV,
	"w":      hotkey.KeyW,
	"x":      hotkey.KeyX,
	"y":      hotkey.KeyY,
	"z":      hotkey.KeyZ,
	"0":      hotkey.Key0,
	"1":      hotkey.Key1,
	"2":      hotkey.Key2,
	"3":      hotkey.Key3,
	"4":      hotkey.Key4,
	"5":      hotkey.Key5,
	"6":      hotkey.Key6,
	"7":      hotkey.Key7,
	"8":      hotkey.Key8,
	"9":      hotkey.Key9,
	"f1":     hotkey.KeyF1,
	"f2":     hotkey.KeyF2,
	"f3":     hotkey.KeyF3,
	"f4":     hotkey.KeyF4,
	"f5":     hotkey.KeyF5,
	"f6":     hotkey.KeyF6,
	"f7":     hotkey.KeyF7,
	"f8":     hotkey.KeyF8,
	"f9":     hotkey.KeyF9,
	"f10":    hotkey.KeyF10,
	"f11":    hotkey.KeyF11,
	"f12":    hotkey.KeyF12,
}
