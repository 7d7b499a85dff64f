package daemon

import (
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServiceConn struct {
	exports          map[string]interface{}
	requestNameReply dbus.RequestNameReply
	requestNameErr   error
	requestedNames   []string
	releasedNames    []string
	emitted          []string
	closed           bool
}

func newFakeServiceConn() *fakeServiceConn {
	return &fakeServiceConn{
		exports:          make(map[string]interface{}),
		requestNameReply: dbus.RequestNameReplyPrimaryOwner,
	}
}

func (c *fakeServiceConn) Export(v interface{}, path dbus.ObjectPath, iface string) error {
	key := string(path) + ":" + iface
	if v == nil {
		delete(c.exports, key)
	} else {
		c.exports[key] = v
	}
	return nil
}

func (c *fakeServiceConn) RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error) {
	c.requestedNames = append(c.requestedNames, name)
	return c.requestNameReply, c.requestNameErr
}

func (c *fakeServiceConn) ReleaseName(name string) (dbus.ReleaseNameReply, error) {
	c.releasedNames = append(c.releasedNames, name)
	return dbus.ReleaseNameReplyReleased, nil
}

func (c *fakeServiceConn) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	c.emitted = append(c.emitted, name)
	return nil
}

func (c *fakeServiceConn) Close() error {
	c.closed = true
	return nil
}

func useFakeSessionBus(t *testing.T, conn *fakeServiceConn) {
	t.Helper()
	orig := connectSessionBus
	connectSessionBus = func() (serviceConn, error) { return conn, nil }
	t.Cleanup(func() { connectSessionBus = orig })
}

func TestServiceStartExportsInterface(t *testing.T) {
	conn := newFakeServiceConn()
	useFakeSessionBus(t, conn)

	svc := NewService(NewState(Options{}), "")
	require.NoError(t, svc.Start())
	defer svc.Stop()

	assert.Equal(t, []string{DefaultBusName}, conn.requestedNames)
	assert.NotNil(t, conn.exports[string(ObjectPath)+":"+Interface])
}

func TestServiceStartNameTaken(t *testing.T) {
	conn := newFakeServiceConn()
	conn.requestNameReply = dbus.RequestNameReplyExists
	useFakeSessionBus(t, conn)

	svc := NewService(NewState(Options{}), "")
	require.Error(t, svc.Start())
	assert.True(t, conn.closed)
}

func TestServiceStopReleasesName(t *testing.T) {
	conn := newFakeServiceConn()
	useFakeSessionBus(t, conn)

	svc := NewService(NewState(Options{}), "io.dikt.TestTranscription")
	require.NoError(t, svc.Start())

	svc.Stop()
	assert.True(t, conn.closed)
	assert.Equal(t, []string{"io.dikt.TestTranscription"}, conn.releasedNames)
	assert.Empty(t, conn.exports)

	// Idempotent.
	svc.Stop()
}

func TestServiceEmitsSignals(t *testing.T) {
	conn := newFakeServiceConn()
	useFakeSessionBus(t, conn)

	svc := NewService(NewState(Options{}), "")
	require.NoError(t, svc.Start())
	defer svc.Stop()

	require.NoError(t, svc.EmitTranscriptionReady("hello"))
	require.NoError(t, svc.EmitRecordingStateChanged(true))

	assert.Equal(t, []string{
		Interface + ".TranscriptionReady",
		Interface + ".RecordingStateChanged",
	}, conn.emitted)
}

func TestServiceEmitBeforeStart(t *testing.T) {
	svc := NewService(NewState(Options{}), "")
	assert.Error(t, svc.EmitTranscriptionReady("hello"))
}

func TestHandlerSessionRoundTrip(t *testing.T) {
	state := NewState(Options{})
	h := &transcriptionHandler{state: state}

	sessionID, claimToken, derr := h.StartRecordingSessionForTarget(7)
	require.Nil(t, derr)
	assert.NotZero(t, sessionID)
	assert.NotEmpty(t, claimToken)

	recording, _, derr := h.GetState()
	require.Nil(t, derr)
	assert.True(t, recording)

	ok, derr := h.StopRecordingSession(sessionID)
	require.Nil(t, derr)
	assert.True(t, ok)

	require.True(t, state.CompleteSession(sessionID, "dictated text"))

	gotID, gotClaim, _, derr := h.GetActiveSessionForEngine(7)
	require.Nil(t, derr)
	assert.Equal(t, sessionID, gotID)
	assert.Equal(t, claimToken, gotClaim)

	taken, text, derr := h.TakePendingCommitForSession(sessionID, claimToken)
	require.Nil(t, derr)
	require.True(t, taken)
	assert.Equal(t, "dictated text", text)

	stateName, _, _, derr := h.GetSessionStatus(sessionID)
	require.Nil(t, derr)
	assert.Equal(t, StateCommitted, stateName)
}

func TestHandlerRejectsZeroEngine(t *testing.T) {
	h := &transcriptionHandler{state: NewState(Options{})}

	_, _, derr := h.StartRecordingSessionForTarget(0)
	require.NotNil(t, derr)
	assert.Equal(t, "org.freedesktop.DBus.Error.Failed", derr.Name)
}

func TestHandlerStopFailure(t *testing.T) {
	rec := &fakeRecorder{stopErr: errors.New("transcriber gone")}
	state := NewState(Options{Recorder: rec})
	h := &transcriptionHandler{state: state}

	sessionID, _, derr := h.StartRecordingSessionForTarget(7)
	require.Nil(t, derr)

	_, derr = h.StopRecordingSession(sessionID)
	require.NotNil(t, derr)

	stateName, _, _, _ := h.GetSessionStatus(sessionID)
	assert.Equal(t, StateFailed, stateName)
}

func TestHandlerFocusAndLogs(t *testing.T) {
	state := NewState(Options{})
	h := &transcriptionHandler{state: state}

	require.Nil(t, h.SetFocusedEngine(4, true))
	id, _, derr := h.GetFocusedEngine()
	require.Nil(t, derr)
	assert.Equal(t, uint64(4), id)

	state.AppendLog("something happened")
	logs, derr := h.GetRecentLogs()
	require.Nil(t, derr)
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[len(logs)-1], "something happened")
}

func TestHandlerLanguage(t *testing.T) {
	h := &transcriptionHandler{state: NewState(Options{})}

	lang, derr := h.GetLanguage()
	require.Nil(t, derr)
	assert.Equal(t, "auto", lang)

	require.Nil(t, h.SetLanguage("sv"))
	lang, _ = h.GetLanguage()
	assert.Equal(t, "sv", lang)
}
