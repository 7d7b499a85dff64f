package daemon

import (
	"encoding/json"
	"fmt"
)

// Status is the daemon status snapshot served to diktctl.
type Status struct {
	Recording       bool            `json:"recording"`
	Language        string          `json:"language"`
	FocusedEngineID uint64          `json:"focused_engine_id"`
	FocusedChangeMs uint64          `json:"focused_change_ms"`
	SessionCount    int             `json:"session_count"`
	PendingCommits  json.RawMessage `json:"pending_commits"`
}

// Snapshot captures the current daemon status.
func (s *State) Snapshot() Status {
	s.mu.Lock()
	sessionCount := len(s.sessions)
	s.mu.Unlock()

	engineID, changedMs := s.FocusedEngine()
	return Status{
		Recording:       s.Recording(),
		Language:        s.Language(),
		FocusedEngineID: engineID,
		FocusedChangeMs: changedMs,
		SessionCount:    sessionCount,
		PendingCommits:  json.RawMessage(s.PendingCommitStats()),
	}
}

// StatusJSON renders the status snapshot as JSON.
func (s *State) StatusJSON() (string, error) {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		return "", fmt.Errorf("marshal status: %w", err)
	}
	return string(data), nil
}
