package ibus

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

// IBus key event state masks.
const (
	ShiftMask   uint32 = 1 << 0
	LockMask    uint32 = 1 << 1
	ControlMask uint32 = 1 << 2
	Mod1Mask    uint32 = 1 << 3
	ReleaseMask uint32 = 1 << 30
)

// KeyEscape is the keysym for the Escape key.
const KeyEscape uint32 = 0xff1b

// Engine is one engine instance created by the factory on the IBus
// daemon's request. It carries no dictation state of its own; hosts key
// their state on the instance they receive in callbacks.
type Engine struct {
	conn busConn
	path dbus.ObjectPath
	id   uint64
}

// ID returns the instance id assigned by the factory. Ids are unique for
// the lifetime of the process and never reused.
func (e *Engine) ID() uint64 { return e.id }

// Path returns the object path the instance is exported at.
func (e *Engine) Path() dbus.ObjectPath { return e.path }

// ProcessKeyEvent forwards a key event to the host. Without installed
// callbacks the event is not consumed and passes through to the
// application.
func (e *Engine) ProcessKeyEvent(keyval, keycode, state uint32) (bool, *dbus.Error) {
	return dispatchKeyEvent(e, keyval, keycode, state), nil
}

// FocusIn is called when the engine gains input focus.
func (e *Engine) FocusIn() *dbus.Error {
	dispatchFocusIn(e)
	return nil
}

// FocusOut is called when the engine loses input focus.
func (e *Engine) FocusOut() *dbus.Error {
	dispatchFocusOut(e)
	return nil
}

// Reset is called when the input context is reset.
func (e *Engine) Reset() *dbus.Error {
	dispatchReset(e)
	return nil
}

// Enable is called when the engine becomes the active input method.
func (e *Engine) Enable() *dbus.Error {
	dispatchEnable(e)
	return nil
}

// Disable is called when the engine stops being the active input method.
func (e *Engine) Disable() *dbus.Error {
	dispatchDisable(e)
	return nil
}

// Destroy unexports the instance. IBus calls this through the Service
// interface when the input context goes away.
func (e *Engine) Destroy() *dbus.Error {
	e.conn.Export(nil, e.path, engineInterface)
	e.conn.Export(nil, e.path, serviceInterface)
	return nil
}

// CommitText pushes finished text into the focused application.
func (e *Engine) CommitText(text string) error {
	return e.conn.Emit(e.path, engineInterface+".CommitText", textVariant(text))
}

// UpdatePreeditText shows in-progress text at the cursor.
func (e *Engine) UpdatePreeditText(text string, cursorPos uint32, visible bool) error {
	return e.conn.Emit(e.path, engineInterface+".UpdatePreeditText",
		textVariant(text), cursorPos, visible)
}

// HidePreeditText removes the in-progress text display.
func (e *Engine) HidePreeditText() error {
	return e.conn.Emit(e.path, engineInterface+".HidePreeditText")
}

// Remaining Engine interface methods the daemon may call. The dictation
// engine has no candidate list or properties, so these are accepted and
// ignored.

func (e *Engine) SetCapabilities(caps uint32) *dbus.Error            { return nil }
func (e *Engine) SetCursorLocation(x, y, w, h int32) *dbus.Error     { return nil }
func (e *Engine) SetContentType(purpose, hints uint32) *dbus.Error   { return nil }
func (e *Engine) PropertyActivate(name string, state uint32) *dbus.Error { return nil }
func (e *Engine) PropertyShow(name string) *dbus.Error               { return nil }
func (e *Engine) PropertyHide(name string) *dbus.Error               { return nil }
func (e *Engine) PageUp() *dbus.Error                                { return nil }
func (e *Engine) PageDown() *dbus.Error                              { return nil }
func (e *Engine) CursorUp() *dbus.Error                              { return nil }
func (e *Engine) CursorDown() *dbus.Error                            { return nil }

func (e *Engine) CandidateClicked(index, button, state uint32) *dbus.Error { return nil }

func (e *Engine) SetSurroundingText(text dbus.Variant, cursorPos, anchorPos uint32) *dbus.Error {
	return nil
}

// factory instantiates dikt engines on the IBus daemon's request.
type factory struct {
	conn busConn

	mu     sync.Mutex
	nextID uint64
}

// CreateEngine exports a fresh engine instance and hands its path back to
// the daemon.
func (f *factory) CreateEngine(name string) (dbus.ObjectPath, *dbus.Error) {
	if name != EngineName {
		return "", dbus.NewError("org.freedesktop.IBus.NoEngine",
			[]interface{}{"unknown engine: " + name})
	}

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.mu.Unlock()

	engine := &Engine{
		conn: f.conn,
		path: dbus.ObjectPath(fmt.Sprintf("%s%d", enginePathPrefix, id)),
		id:   id,
	}

	if err := f.conn.Export(engine, engine.path, engineInterface); err != nil {
		return "", dbus.NewError("org.freedesktop.IBus.NoEngine",
			[]interface{}{"export failed: " + err.Error()})
	}
	f.conn.Export(engine, engine.path, serviceInterface)

	logger.Debug("engine instance created", "id", id, "path", string(engine.path))
	return engine.path, nil
}
