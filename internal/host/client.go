// Package host connects IBus engine instances to the Dikt transcription
// daemon: it reports focus, cancels sessions on Escape, and polls the
// daemon for pending commits and live preedit updates.
package host

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	daemonBusName    = "io.dikt.Transcription"
	daemonObjectPath = dbus.ObjectPath("/io/dikt/Transcription")
	daemonInterface  = "io.dikt.Transcription"
)

// TranscriptionClient is the daemon surface the engine host needs.
type TranscriptionClient interface {
	StartSession(targetEngineID uint64) (uint64, string, error)
	StopSession(sessionID uint64) (bool, error)
	CancelSession(sessionID uint64) (bool, error)
	ActiveSessionForEngine(engineID uint64) (sessionID uint64, claimToken string, allowPreedit bool, err error)
	TakePendingCommit(sessionID uint64, claimToken string) (bool, string, error)
	LivePreedit(sessionID uint64, claimToken string) (revision uint64, visible bool, text string, err error)
	SetFocusedEngine(engineID uint64, focused bool) error
}

// Client talks to the transcription daemon over the session bus.
type Client struct {
	obj dbus.BusObject
}

// NewClient builds a client over an established session bus connection.
func NewClient(conn *dbus.Conn) *Client {
	return &Client{obj: conn.Object(daemonBusName, daemonObjectPath)}
}

// NewClientFromObject builds a client over a prepared bus object.
func NewClientFromObject(obj dbus.BusObject) *Client {
	return &Client{obj: obj}
}

func (c *Client) StartSession(targetEngineID uint64) (uint64, string, error) {
	var sessionID uint64
	var claimToken string
	call := c.obj.Call(daemonInterface+".StartRecordingSessionForTarget", 0, targetEngineID)
	if call.Err != nil {
		return 0, "", fmt.Errorf("start session: %w", call.Err)
	}
	if err := call.Store(&sessionID, &claimToken); err != nil {
		return 0, "", fmt.Errorf("decode start session reply: %w", err)
	}
	return sessionID, claimToken, nil
}

func (c *Client) StopSession(sessionID uint64) (bool, error) {
	var ok bool
	call := c.obj.Call(daemonInterface+".StopRecordingSession", 0, sessionID)
	if call.Err != nil {
		return false, fmt.Errorf("stop session: %w", call.Err)
	}
	if err := call.Store(&ok); err != nil {
		return false, fmt.Errorf("decode stop session reply: %w", err)
	}
	return ok, nil
}

func (c *Client) CancelSession(sessionID uint64) (bool, error) {
	var ok bool
	call := c.obj.Call(daemonInterface+".CancelRecordingSession", 0, sessionID)
	if call.Err != nil {
		return false, fmt.Errorf("cancel session: %w", call.Err)
	}
	if err := call.Store(&ok); err != nil {
		return false, fmt.Errorf("decode cancel session reply: %w", err)
	}
	return ok, nil
}

func (c *Client) ActiveSessionForEngine(engineID uint64) (uint64, string, bool, error) {
	var sessionID uint64
	var claimToken string
	var allowPreedit bool
	call := c.obj.Call(daemonInterface+".GetActiveSessionForEngine", 0, engineID)
	if call.Err != nil {
		return 0, "", false, fmt.Errorf("query active session: %w", call.Err)
	}
	if err := call.Store(&sessionID, &claimToken, &allowPreedit); err != nil {
		return 0, "", false, fmt.Errorf("decode active session reply: %w", err)
	}
	return sessionID, claimToken, allowPreedit, nil
}

func (c *Client) TakePendingCommit(sessionID uint64, claimToken string) (bool, string, error) {
	var ok bool
	var text string
	call := c.obj.Call(daemonInterface+".TakePendingCommitForSession", 0, sessionID, claimToken)
	if call.Err != nil {
		return false, "", fmt.Errorf("take pending commit: %w", call.Err)
	}
	if err := call.Store(&ok, &text); err != nil {
		return false, "", fmt.Errorf("decode pending commit reply: %w", err)
	}
	return ok, text, nil
}

func (c *Client) LivePreedit(sessionID uint64, claimToken string) (uint64, bool, string, error) {
	var revision uint64
	var visible bool
	var text string
	call := c.obj.Call(daemonInterface+".GetLivePreeditForSession", 0, sessionID, claimToken)
	if call.Err != nil {
		return 0, false, "", fmt.Errorf("read live preedit: %w", call.Err)
	}
	if err := call.Store(&revision, &visible, &text); err != nil {
		return 0, false, "", fmt.Errorf("decode live preedit reply: %w", err)
	}
	return revision, visible, text, nil
}

func (c *Client) SetFocusedEngine(engineID uint64, focused bool) error {
	call := c.obj.Call(daemonInterface+".SetFocusedEngine", 0, engineID, focused)
	if call.Err != nil {
		return fmt.Errorf("report focus: %w", call.Err)
	}
	return nil
}
