package daemon

import (
	"encoding/json"
	"sync"
	"time"
)

// pendingCommit is one finalized transcript waiting for its engine to
// claim it.
type pendingCommit struct {
	sessionID  uint64
	claimToken string
	text       string
	createdAt  time.Time
}

// pendingCommitStore is a bounded FIFO of finalized transcripts. When the
// queue is full the oldest entry is dropped and counted.
type pendingCommitStore struct {
	mu      sync.Mutex
	queue   []pendingCommit
	max     int
	dropped uint64
	clock   func() time.Time
}

func newPendingCommitStore(max int, clock func() time.Time) *pendingCommitStore {
	if max <= 0 {
		max = defaultMaxPendingCommits
	}
	if clock == nil {
		clock = time.Now
	}
	return &pendingCommitStore{max: max, clock: clock}
}

func (s *pendingCommitStore) store(sessionID uint64, claimToken, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) >= s.max {
		s.queue = s.queue[1:]
		s.dropped++
	}
	s.queue = append(s.queue, pendingCommit{
		sessionID:  sessionID,
		claimToken: claimToken,
		text:       text,
		createdAt:  s.clock(),
	})
}

// takeForSession removes and returns the first queued commit matching the
// session and claim token.
func (s *pendingCommitStore) takeForSession(sessionID uint64, claimToken string) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, entry := range s.queue {
		if entry.sessionID == sessionID && entry.claimToken == claimToken {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true, entry.text
		}
	}
	return false, ""
}

// removeSession drops all queued commits for a reaped session.
func (s *pendingCommitStore) removeSession(sessionID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.queue[:0]
	for _, entry := range s.queue {
		if entry.sessionID != sessionID {
			kept = append(kept, entry)
		}
	}
	s.queue = kept
}

// commitStats is the wire shape of GetPendingCommitStats.
type commitStats struct {
	QueueLen    int               `json:"queue_len"`
	OldestAgeMs uint64            `json:"oldest_age_ms"`
	DroppedCnt  uint64            `json:"dropped_count"`
	Targets     map[uint64]uint64 `json:"targets"`
}

func (s *pendingCommitStore) statsJSON() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := commitStats{
		QueueLen:   len(s.queue),
		DroppedCnt: s.dropped,
		Targets:    make(map[uint64]uint64),
	}
	if len(s.queue) > 0 {
		age := s.clock().Sub(s.queue[0].createdAt)
		if age > 0 {
			stats.OldestAgeMs = uint64(age.Milliseconds())
		}
	}
	for _, entry := range s.queue {
		stats.Targets[entry.sessionID]++
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return `{"queue_len":0,"oldest_age_ms":0,"dropped_count":0,"targets":{}}`
	}
	return string(data)
}
