package ibus

import "sync/atomic"

// Callbacks is the table of host functions the engine forwards IBus events
// into. Each slot receives the opaque context passed to Install and the
// engine instance the event arrived on. Nil slots are skipped.
type Callbacks struct {
	// KeyEvent handles a key press or release. Returning true consumes
	// the event; false passes it through to the focused application.
	KeyEvent func(ctx interface{}, engine *Engine, keyval, keycode, state uint32) bool

	FocusIn  func(ctx interface{}, engine *Engine)
	FocusOut func(ctx interface{}, engine *Engine)
	Reset    func(ctx interface{}, engine *Engine)
	Enable   func(ctx interface{}, engine *Engine)
	Disable  func(ctx interface{}, engine *Engine)
}

// callbackTable pairs the context with its callbacks so both publish in a
// single atomic store.
type callbackTable struct {
	ctx interface{}
	cb  Callbacks
}

var installed atomic.Pointer[callbackTable]

// Install registers the host context and callback table the engine
// dispatches into. All seven values are published together; the last call
// wins. Install must complete before Init. Re-installing concurrently with
// event dispatch is not safe.
func Install(ctx interface{}, cb Callbacks) {
	installed.Store(&callbackTable{ctx: ctx, cb: cb})
}

// dispatchKeyEvent forwards a key event through the installed table.
// Without an installed slot and a non-nil context the event is reported as
// not consumed.
func dispatchKeyEvent(e *Engine, keyval, keycode, state uint32) bool {
	t := installed.Load()
	if t == nil || t.ctx == nil || t.cb.KeyEvent == nil {
		return false
	}
	return t.cb.KeyEvent(t.ctx, e, keyval, keycode, state)
}

func dispatchEvent(e *Engine, slot func(*callbackTable) func(interface{}, *Engine)) {
	t := installed.Load()
	if t == nil || t.ctx == nil {
		return
	}
	if fn := slot(t); fn != nil {
		fn(t.ctx, e)
	}
}

func dispatchFocusIn(e *Engine) {
	dispatchEvent(e, func(t *callbackTable) func(interface{}, *Engine) { return t.cb.FocusIn })
}

func dispatchFocusOut(e *Engine) {
	dispatchEvent(e, func(t *callbackTable) func(interface{}, *Engine) { return t.cb.FocusOut })
}

func dispatchReset(e *Engine) {
	dispatchEvent(e, func(t *callbackTable) func(interface{}, *Engine) { return t.cb.Reset })
}

func dispatchEnable(e *Engine) {
	dispatchEvent(e, func(t *callbackTable) func(interface{}, *Engine) { return t.cb.Enable })
}

func dispatchDisable(e *Engine) {
	dispatchEvent(e, func(t *callbackTable) func(interface{}, *Engine) { return t.cb.Disable })
}
