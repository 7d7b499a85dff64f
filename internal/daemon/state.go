// Package daemon implements the Dikt transcription daemon: recording
// session routing, pending commit delivery, live preedit distribution,
// and the io.dikt.Transcription D-Bus service the IBus engine talks to.
package daemon

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rohithmahesh3/Dikt/internal/history"
)

const (
	// defaultSessionTTL is how long an idle terminal session is kept
	// before it is reaped.
	defaultSessionTTL = 5 * time.Minute

	// defaultMaxPendingCommits bounds the pending commit queue.
	defaultMaxPendingCommits = 32

	// maxRecentLogs bounds the in-memory log ring.
	maxRecentLogs = 400
)

// Session lifecycle states.
const (
	StateCreated    = "created"
	StateStarting   = "starting"
	StateRecording  = "recording"
	StateFinalizing = "finalizing"
	StateReady      = "ready"
	StateCommitted  = "committed"
	StateCancelled  = "cancelled"
	StateFailed     = "failed"
	StateMissing    = "missing"
)

// Recorder captures audio and produces transcripts for a session. The
// daemon drives it; finished text comes back through CompleteSession.
type Recorder interface {
	// Start begins capturing for the session.
	Start(sessionID uint64) error

	// Stop ends capture and triggers final transcription. The final
	// text is delivered asynchronously via State.CompleteSession.
	Stop(sessionID uint64) error

	// Cancel discards any capture in progress for the session.
	Cancel(sessionID uint64)
}

type sessionStatus struct {
	state     string
	message   string
	updatedAt time.Time
}

type session struct {
	engineID   uint64
	claimToken string
	status     sessionStatus
	stopping   bool
}

// Options configures daemon state.
type Options struct {
	// SessionTTL overrides the idle session retention window.
	SessionTTL time.Duration

	// MaxPendingCommits overrides the pending commit queue bound.
	MaxPendingCommits int

	// Recorder captures audio. Nil means sessions only accept text
	// pushed through CompleteSession.
	Recorder Recorder

	// History receives committed transcripts. Optional.
	History *history.Store

	// Logger receives structured daemon logs.
	Logger *slog.Logger

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// State holds all daemon-side session and routing state. All methods are
// safe for concurrent use.
type State struct {
	mu       sync.Mutex
	sessions map[uint64]*session

	sessionCounter atomic.Uint64
	claimCounter   atomic.Uint64

	pending *pendingCommitStore
	preedit *livePreeditStore

	preeditRevision atomic.Uint64

	recording atomic.Bool

	focusedEngineID atomic.Uint64
	focusedChangeMs atomic.Uint64

	logMu   sync.Mutex
	logRing []string

	langMu   sync.Mutex
	language string

	ttl      time.Duration
	recorder Recorder
	hist     *history.Store
	logger   *slog.Logger
	clock    func() time.Time
}

// NewState creates daemon state with the given options.
func NewState(opts Options) *State {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &State{
		sessions: make(map[uint64]*session),
		language: "auto",
		pending:  newPendingCommitStore(opts.MaxPendingCommits, opts.Clock),
		preedit:  newLivePreeditStore(),
		ttl:      opts.SessionTTL,
		recorder: opts.Recorder,
		hist:     opts.History,
		logger:   opts.Logger,
		clock:    opts.Clock,
	}
}

func (s *State) nextClaimToken(sessionID uint64) string {
	nonce := s.claimCounter.Add(1)
	nowMs := uint64(s.clock().UnixMilli())
	return fmt.Sprintf("%016x%016x%016x", nowMs, sessionID, nonce)
}

// StartSession creates a recording session bound to the target engine and
// begins capture. Returns the session id and its claim token.
func (s *State) StartSession(targetEngineID uint64) (uint64, string, error) {
	s.CleanupExpiredSessions()

	if targetEngineID == 0 {
		return 0, "", fmt.Errorf("invalid target engine id 0 for session routing")
	}

	sessionID := s.sessionCounter.Add(1)
	claimToken := s.nextClaimToken(sessionID)

	s.mu.Lock()
	s.sessions[sessionID] = &session{
		engineID:   targetEngineID,
		claimToken: claimToken,
		status:     sessionStatus{state: StateStarting, message: "Starting recording", updatedAt: s.clock()},
	}
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.Start(sessionID); err != nil {
			s.removeSession(sessionID)
			return 0, "", fmt.Errorf("start recording: %w", err)
		}
	}

	s.recording.Store(true)
	s.setSessionStatus(sessionID, StateRecording, "Recording in progress")
	s.appendLog(fmt.Sprintf("session %d started for engine %d", sessionID, targetEngineID))
	return sessionID, claimToken, nil
}

// StopSession ends capture for a session. The final transcript arrives
// through CompleteSession once transcription finishes. Returns false for
// unknown sessions.
func (s *State) StopSession(sessionID uint64) (bool, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	if sess.stopping {
		s.mu.Unlock()
		return true, nil
	}
	sess.stopping = true
	s.mu.Unlock()

	s.setSessionStatus(sessionID, StateFinalizing, "Transcribing recording")
	s.recording.Store(false)

	if s.recorder != nil {
		if err := s.recorder.Stop(sessionID); err != nil {
			s.setSessionStatus(sessionID, StateFailed, "Transcription failed")
			return false, fmt.Errorf("stop recording: %w", err)
		}
	}

	s.appendLog(fmt.Sprintf("session %d stopping", sessionID))
	return true, nil
}

// CancelSession discards a session and clears its live preedit. Returns
// false for unknown sessions.
func (s *State) CancelSession(sessionID uint64) bool {
	s.CleanupExpiredSessions()

	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	sess.stopping = false
	s.mu.Unlock()

	s.setSessionStatus(sessionID, StateCancelled, "Session cancelled")
	s.preedit.clear(sessionID, s.preeditRevision.Add(1))

	if s.recording.Swap(false) && s.recorder != nil {
		s.recorder.Cancel(sessionID)
	}

	s.appendLog(fmt.Sprintf("session %d cancelled", sessionID))
	return true
}

// CompleteSession delivers the final transcript for a session: it is
// queued as a pending commit for the bound engine, recorded in history,
// and the live preedit is cleared.
func (s *State) CompleteSession(sessionID uint64, text string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("dropping transcript for unknown session", "session", sessionID)
		return false
	}
	claimToken := sess.claimToken
	engineID := sess.engineID
	s.mu.Unlock()

	s.pending.store(sessionID, claimToken, text)
	s.preedit.clear(sessionID, s.preeditRevision.Add(1))
	s.setSessionStatus(sessionID, StateReady, "Final transcript ready")

	if s.hist != nil && text != "" {
		if _, err := s.hist.Append(sessionID, engineID, text, s.clock()); err != nil {
			s.logger.Warn("history append failed", "session", sessionID, "error", err)
		}
	}

	s.appendLog(fmt.Sprintf("session %d transcript ready (%d chars)", sessionID, len(text)))
	return true
}

// TakePendingCommit atomically consumes the pending transcript for a
// session claim.
func (s *State) TakePendingCommit(sessionID uint64, claimToken string) (bool, string) {
	ok, text := s.pending.takeForSession(sessionID, claimToken)
	if ok {
		s.setSessionStatus(sessionID, StateCommitted, "Final commit delivered")
	}
	return ok, text
}

// PendingCommitStats returns aggregate queue stats as JSON.
func (s *State) PendingCommitStats() string {
	return s.pending.statsJSON()
}

// SetLivePreedit publishes a partial transcript for a session.
func (s *State) SetLivePreedit(sessionID uint64, text string) {
	if sessionID == 0 {
		return
	}
	s.preedit.set(sessionID, s.preeditRevision.Add(1), text)
}

// LivePreedit returns the latest preedit payload for a session claim.
// Unknown sessions and bad claims read as empty.
func (s *State) LivePreedit(sessionID uint64, claimToken string) (uint64, bool, string) {
	if !s.validateClaim(sessionID, claimToken) {
		return 0, false, ""
	}
	return s.preedit.forSession(sessionID)
}

// ActiveSessionForEngine returns the most relevant live session bound to
// an engine: recording beats finalizing beats ready, newest status wins
// ties. The third return reports whether preedit display is allowed.
func (s *State) ActiveSessionForEngine(engineID uint64) (uint64, string, bool) {
	if engineID == 0 {
		return 0, "", false
	}
	s.CleanupExpiredSessions()

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		found        bool
		bestPriority int
		bestUpdated  time.Time
		bestID       uint64
		bestClaim    string
		bestPreedit  bool
	)
	for id, sess := range s.sessions {
		if sess.engineID != engineID {
			continue
		}
		var priority int
		var allowPreedit bool
		switch sess.status.state {
		case StateRecording:
			priority, allowPreedit = 3, true
		case StateFinalizing:
			priority = 2
		case StateReady:
			priority = 1
		default:
			continue
		}
		better := !found ||
			priority > bestPriority ||
			(priority == bestPriority && sess.status.updatedAt.After(bestUpdated)) ||
			(priority == bestPriority && sess.status.updatedAt.Equal(bestUpdated) && id > bestID)
		if better {
			found = true
			bestPriority = priority
			bestUpdated = sess.status.updatedAt
			bestID = id
			bestClaim = sess.claimToken
			bestPreedit = allowPreedit
		}
	}

	if !found {
		return 0, "", false
	}
	return bestID, bestClaim, bestPreedit
}

// SessionStatus returns the state, message and last update time (unix
// milliseconds) for a session. Unknown sessions read as missing.
func (s *State) SessionStatus(sessionID uint64) (string, string, uint64) {
	s.CleanupExpiredSessions()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return StateMissing, "Session not found", 0
	}
	return sess.status.state, sess.status.message, uint64(sess.status.updatedAt.UnixMilli())
}

// SetFocusedEngine records focus transitions reported by engine
// instances. Losing focus only clears the record if the engine still
// holds it.
func (s *State) SetFocusedEngine(engineID uint64, focused bool) {
	current := s.focusedEngineID.Load()
	next := current
	if focused {
		next = engineID
	} else if current == engineID {
		next = 0
	}
	if next != current {
		s.focusedEngineID.Store(next)
		s.focusedChangeMs.Store(uint64(s.clock().UnixMilli()))
	}
}

// FocusedEngine returns the focused engine id and the unix-millisecond
// timestamp of the last change.
func (s *State) FocusedEngine() (uint64, uint64) {
	return s.focusedEngineID.Load(), s.focusedChangeMs.Load()
}

// Recording reports whether a capture is in progress.
func (s *State) Recording() bool {
	return s.recording.Load()
}

// CleanupExpiredSessions reaps terminal sessions idle past the TTL.
func (s *State) CleanupExpiredSessions() {
	now := s.clock()

	s.mu.Lock()
	var expired []uint64
	for id, sess := range s.sessions {
		switch sess.status.state {
		case StateReady, StateFailed, StateCancelled, StateCommitted:
			if now.Sub(sess.status.updatedAt) > s.ttl {
				expired = append(expired, id)
			}
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.removeSession(id)
	}
}

func (s *State) removeSession(sessionID uint64) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	s.preedit.remove(sessionID)
	s.pending.removeSession(sessionID)
}

func (s *State) setSessionStatus(sessionID uint64, state, message string) {
	if sessionID == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		sess.status = sessionStatus{state: state, message: message, updatedAt: s.clock()}
	}
}

func (s *State) validateClaim(sessionID uint64, claimToken string) bool {
	if claimToken == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	return ok && sess.claimToken == claimToken
}

// Language returns the currently selected transcription language.
func (s *State) Language() string {
	s.langMu.Lock()
	defer s.langMu.Unlock()
	return s.language
}

// SetLanguage selects the transcription language.
func (s *State) SetLanguage(language string) {
	s.langMu.Lock()
	defer s.langMu.Unlock()
	s.language = language
}

// AppendLog adds a line to the in-memory log ring served by
// GetRecentLogs.
func (s *State) AppendLog(line string) {
	s.appendLog(line)
}

func (s *State) appendLog(line string) {
	stamped := s.clock().Format(time.RFC3339) + " " + line

	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.logRing = append(s.logRing, stamped)
	if len(s.logRing) > maxRecentLogs {
		s.logRing = s.logRing[len(s.logRing)-maxRecentLogs:]
	}
}

// RecentLogs returns up to limit most recent log lines, oldest first.
func (s *State) RecentLogs(limit int) []string {
	s.logMu.Lock()
	defer s.logMu.Unlock()

	if limit <= 0 || limit > len(s.logRing) {
		limit = len(s.logRing)
	}
	out := make([]string, limit)
	copy(out, s.logRing[len(s.logRing)-limit:])
	return out
}
