package host

import (
	"context"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBusObject returns canned replies keyed by method name.
type fakeBusObject struct {
	replies map[string]*dbus.Call
	calls   []string
}

func newFakeBusObject() *fakeBusObject {
	return &fakeBusObject{replies: make(map[string]*dbus.Call)}
}

func (o *fakeBusObject) reply(method string, body ...interface{}) {
	o.replies[daemonInterface+"."+method] = &dbus.Call{Body: body}
}

func (o *fakeBusObject) fail(method string, err error) {
	o.replies[daemonInterface+"."+method] = &dbus.Call{Err: err}
}

func (o *fakeBusObject) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	o.calls = append(o.calls, method)
	if call, ok := o.replies[method]; ok {
		return call
	}
	return &dbus.Call{Body: []interface{}{}}
}

func (o *fakeBusObject) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	return o.Call(method, flags, args...)
}

func (o *fakeBusObject) Go(method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	return o.Call(method, flags, args...)
}

func (o *fakeBusObject) GoWithContext(ctx context.Context, method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	return o.Call(method, flags, args...)
}

func (o *fakeBusObject) AddMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (o *fakeBusObject) RemoveMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (o *fakeBusObject) GetProperty(p string) (dbus.Variant, error) {
	return dbus.Variant{}, errors.New("not implemented")
}

func (o *fakeBusObject) StoreProperty(p string, value interface{}) error {
	return errors.New("not implemented")
}

func (o *fakeBusObject) SetProperty(p string, v interface{}) error {
	return errors.New("not implemented")
}

func (o *fakeBusObject) Destination() string   { return daemonBusName }
func (o *fakeBusObject) Path() dbus.ObjectPath { return daemonObjectPath }

func TestClientStartSession(t *testing.T) {
	obj := newFakeBusObject()
	obj.reply("StartRecordingSessionForTarget", uint64(5), "claim-token")
	c := NewClientFromObject(obj)

	sessionID, claimToken, err := c.StartSession(7)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sessionID)
	assert.Equal(t, "claim-token", claimToken)
}

func TestClientStartSessionError(t *testing.T) {
	obj := newFakeBusObject()
	obj.fail("StartRecordingSessionForTarget", errors.New("daemon gone"))
	c := NewClientFromObject(obj)

	_, _, err := c.StartSession(7)
	assert.Error(t, err)
}

func TestClientActiveSession(t *testing.T) {
	obj := newFakeBusObject()
	obj.reply("GetActiveSessionForEngine", uint64(9), "claim", true)
	c := NewClientFromObject(obj)

	sessionID, claimToken, allowPreedit, err := c.ActiveSessionForEngine(4)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), sessionID)
	assert.Equal(t, "claim", claimToken)
	assert.True(t, allowPreedit)
}

func TestClientTakePendingCommit(t *testing.T) {
	obj := newFakeBusObject()
	obj.reply("TakePendingCommitForSession", true, "final text")
	c := NewClientFromObject(obj)

	ok, text, err := c.TakePendingCommit(9, "claim")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "final text", text)
}

func TestClientLivePreedit(t *testing.T) {
	obj := newFakeBusObject()
	obj.reply("GetLivePreeditForSession", uint64(3), true, "partial")
	c := NewClientFromObject(obj)

	revision, visible, text, err := c.LivePreedit(9, "claim")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), revision)
	assert.True(t, visible)
	assert.Equal(t, "partial", text)
}

func TestClientStopAndCancel(t *testing.T) {
	obj := newFakeBusObject()
	obj.reply("StopRecordingSession", true)
	obj.reply("CancelRecordingSession", false)
	c := NewClientFromObject(obj)

	ok, err := c.StopSession(9)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.CancelSession(9)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClientSetFocusedEngine(t *testing.T) {
	obj := newFakeBusObject()
	c := NewClientFromObject(obj)

	require.NoError(t, c.SetFocusedEngine(4, true))
	assert.Equal(t, []string{daemonInterface + ".SetFocusedEngine"}, obj.calls)
}
