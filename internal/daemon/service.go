package daemon

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	// ObjectPath is where the transcription service is exported.
	ObjectPath = dbus.ObjectPath("/io/dikt/Transcription")

	// Interface is the transcription service D-Bus interface.
	Interface = "io.dikt.Transcription"

	// DefaultBusName is the well-known name the daemon claims.
	DefaultBusName = "io.dikt.Transcription"
)

// serviceConn is the slice of *dbus.Conn the service uses, split out so
// tests can substitute a fake.
type serviceConn interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	ReleaseName(name string) (dbus.ReleaseNameReply, error)
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
	Close() error
}

var connectSessionBus = func() (serviceConn, error) {
	conn, err := dbus.SessionBusPrivate()
	if err != nil {
		return nil, err
	}
	if err := conn.Auth(nil); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.Hello(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Service exports daemon state as io.dikt.Transcription on the session
// bus.
type Service struct {
	state   *State
	conn    serviceConn
	busName string
}

// NewService creates a transcription service over the given state. An
// empty busName uses the default.
func NewService(state *State, busName string) *Service {
	if busName == "" {
		busName = DefaultBusName
	}
	return &Service{state: state, busName: busName}
}

// Start connects to the session bus, claims the well-known name, and
// exports the transcription interface.
func (s *Service) Start() error {
	conn, err := connectSessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}

	reply, err := conn.RequestName(s.busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return fmt.Errorf("request name %s: %w", s.busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return fmt.Errorf("name %s already owned (another daemon running?)", s.busName)
	}

	handler := &transcriptionHandler{state: s.state}
	if err := conn.Export(handler, ObjectPath, Interface); err != nil {
		conn.Close()
		return fmt.Errorf("export transcription interface: %w", err)
	}

	s.conn = conn
	return nil
}

// Stop releases the bus name and closes the connection. Safe to call
// more than once.
func (s *Service) Stop() {
	if s.conn == nil {
		return
	}
	s.conn.Export(nil, ObjectPath, Interface)
	s.conn.ReleaseName(s.busName)
	s.conn.Close()
	s.conn = nil
}

// EmitTranscriptionReady announces a finished transcript to any
// listeners.
func (s *Service) EmitTranscriptionReady(text string) error {
	if s.conn == nil {
		return fmt.Errorf("service not started")
	}
	return s.conn.Emit(ObjectPath, Interface+".TranscriptionReady", text)
}

// EmitRecordingStateChanged announces recording start/stop.
func (s *Service) EmitRecordingStateChanged(isRecording bool) error {
	if s.conn == nil {
		return fmt.Errorf("service not started")
	}
	return s.conn.Emit(ObjectPath, Interface+".RecordingStateChanged", isRecording)
}

// transcriptionHandler adapts State to the D-Bus method surface. Method
// names are the exported D-Bus member names.
type transcriptionHandler struct {
	state *State
}

// StartRecordingSessionForTarget starts a session routed to an engine id.
func (h *transcriptionHandler) StartRecordingSessionForTarget(targetEngineID uint64) (uint64, string, *dbus.Error) {
	sessionID, claimToken, err := h.state.StartSession(targetEngineID)
	if err != nil {
		return 0, "", dbus.NewError("org.freedesktop.DBus.Error.Failed", []interface{}{err.Error()})
	}
	return sessionID, claimToken, nil
}

// StopRecordingSession ends capture; final text arrives on the pending
// commit path.
func (h *transcriptionHandler) StopRecordingSession(sessionID uint64) (bool, *dbus.Error) {
	ok, err := h.state.StopSession(sessionID)
	if err != nil {
		return false, dbus.NewError("org.freedesktop.DBus.Error.Failed", []interface{}{err.Error()})
	}
	return ok, nil
}

// CancelRecordingSession discards a session and its live preedit.
func (h *transcriptionHandler) CancelRecordingSession(sessionID uint64) (bool, *dbus.Error) {
	return h.state.CancelSession(sessionID), nil
}

// GetState returns (is_recording, is_ready).
func (h *transcriptionHandler) GetState() (bool, bool, *dbus.Error) {
	return h.state.Recording(), h.state.recorder != nil, nil
}

// TakePendingCommitForSession atomically consumes pending final text for
// a session claim.
func (h *transcriptionHandler) TakePendingCommitForSession(sessionID uint64, claimToken string) (bool, string, *dbus.Error) {
	ok, text := h.state.TakePendingCommit(sessionID, claimToken)
	return ok, text, nil
}

// GetPendingCommitStats returns aggregate queue stats as JSON.
func (h *transcriptionHandler) GetPendingCommitStats() (string, *dbus.Error) {
	return h.state.PendingCommitStats(), nil
}

// GetLivePreeditForSession reads the latest preedit payload for a
// session claim.
func (h *transcriptionHandler) GetLivePreeditForSession(sessionID uint64, claimToken string) (uint64, bool, string, *dbus.Error) {
	revision, visible, text := h.state.LivePreedit(sessionID, claimToken)
	return revision, visible, text, nil
}

// GetActiveSessionForEngine returns the most relevant session bound to
// an engine id.
func (h *transcriptionHandler) GetActiveSessionForEngine(engineID uint64) (uint64, string, bool, *dbus.Error) {
	sessionID, claimToken, allowPreedit := h.state.ActiveSessionForEngine(engineID)
	return sessionID, claimToken, allowPreedit, nil
}

// GetSessionStatus returns the current status of a session.
func (h *transcriptionHandler) GetSessionStatus(sessionID uint64) (string, string, uint64, *dbus.Error) {
	state, message, updatedMs := h.state.SessionStatus(sessionID)
	return state, message, updatedMs, nil
}

// SetFocusedEngine records focus transitions from IBus callbacks.
func (h *transcriptionHandler) SetFocusedEngine(engineID uint64, focused bool) *dbus.Error {
	h.state.SetFocusedEngine(engineID, focused)
	return nil
}

// GetFocusedEngine reads the focused engine id and last change
// timestamp.
func (h *transcriptionHandler) GetFocusedEngine() (uint64, uint64, *dbus.Error) {
	engineID, changedMs := h.state.FocusedEngine()
	return engineID, changedMs, nil
}

// GetRecentLogs returns recent daemon log lines.
func (h *transcriptionHandler) GetRecentLogs() ([]string, *dbus.Error) {
	return h.state.RecentLogs(maxRecentLogs), nil
}

// GetStatusJson returns the full daemon status snapshot as JSON.
func (h *transcriptionHandler) GetStatusJson() (string, *dbus.Error) {
	status, err := h.state.StatusJSON()
	if err != nil {
		return "", dbus.NewError("org.freedesktop.DBus.Error.Failed", []interface{}{err.Error()})
	}
	return status, nil
}

// GetLanguage returns the selected transcription language.
func (h *transcriptionHandler) GetLanguage() (string, *dbus.Error) {
	return h.state.Language(), nil
}

// SetLanguage selects the transcription language.
func (h *transcriptionHandler) SetLanguage(language string) *dbus.Error {
	h.state.SetLanguage(language)
	return nil
}
