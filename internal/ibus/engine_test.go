package ibus

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryCreateEngine(t *testing.T) {
	resetPackageState(t)
	bus := newMockBus()
	f := &factory{conn: bus}

	path, derr := f.CreateEngine(EngineName)
	require.Nil(t, derr)
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/IBus/Engine/Dikt/1"), path)

	// The instance is reachable under both the engine and service
	// interfaces.
	assert.NotNil(t, bus.exported(path, engineInterface))
	assert.NotNil(t, bus.exported(path, serviceInterface))

	// Instance ids advance; paths are never reused.
	path2, derr := f.CreateEngine(EngineName)
	require.Nil(t, derr)
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/IBus/Engine/Dikt/2"), path2)
}

func TestFactoryRejectsUnknownEngine(t *testing.T) {
	resetPackageState(t)
	f := &factory{conn: newMockBus()}

	_, derr := f.CreateEngine("anthy")
	require.NotNil(t, derr)
	assert.Equal(t, "org.freedesktop.IBus.NoEngine", derr.Name)
}

func TestEngineDestroyUnexports(t *testing.T) {
	resetPackageState(t)
	bus := newMockBus()
	f := &factory{conn: bus}

	path, derr := f.CreateEngine(EngineName)
	require.Nil(t, derr)

	engine := bus.exported(path, engineInterface).(*Engine)
	require.Nil(t, engine.Destroy())

	assert.Nil(t, bus.exported(path, engineInterface))
	assert.Nil(t, bus.exported(path, serviceInterface))
}

func TestEngineCommitText(t *testing.T) {
	resetPackageState(t)
	bus := newMockBus()
	e := &Engine{conn: bus, path: "/org/freedesktop/IBus/Engine/Dikt/1", id: 1}

	require.NoError(t, e.CommitText("hello world"))

	require.Len(t, bus.emitted, 1)
	sig := bus.emitted[0]
	assert.Equal(t, e.path, sig.path)
	assert.Equal(t, engineInterface+".CommitText", sig.name)

	require.Len(t, sig.values, 1)
	text, ok := sig.values[0].(dbus.Variant)
	require.True(t, ok)
	record, ok := text.Value().(textRecord)
	require.True(t, ok)
	assert.Equal(t, "IBusText", record.TypeName)
	assert.Equal(t, "hello world", record.Text)
}

func TestEngineUpdateAndHidePreedit(t *testing.T) {
	resetPackageState(t)
	bus := newMockBus()
	e := &Engine{conn: bus, path: "/org/freedesktop/IBus/Engine/Dikt/2", id: 2}

	require.NoError(t, e.UpdatePreeditText("dicta", 5, true))
	require.NoError(t, e.HidePreeditText())

	require.Len(t, bus.emitted, 2)
	assert.Equal(t, engineInterface+".UpdatePreeditText", bus.emitted[0].name)
	assert.Equal(t, []interface{}{uint32(5), true}, bus.emitted[0].values[1:])
	assert.Equal(t, engineInterface+".HidePreeditText", bus.emitted[1].name)
	assert.Empty(t, bus.emitted[1].values)
}

func TestSecondaryEngineMethodsAreNoOps(t *testing.T) {
	resetPackageState(t)
	e := &Engine{conn: newMockBus(), id: 1}

	assert.Nil(t, e.SetCapabilities(9))
	assert.Nil(t, e.SetCursorLocation(0, 0, 10, 20))
	assert.Nil(t, e.SetContentType(1, 0))
	assert.Nil(t, e.SetSurroundingText(dbus.Variant{}, 0, 0))
	assert.Nil(t, e.PropertyActivate("prop", 1))
	assert.Nil(t, e.PageUp())
	assert.Nil(t, e.PageDown())
	assert.Nil(t, e.CursorUp())
	assert.Nil(t, e.CursorDown())
	assert.Nil(t, e.CandidateClicked(0, 1, 0))
}
