package daemon

import "sync"

// livePreeditEntry is the latest partial transcript for a session. The
// revision orders updates so a late-arriving stale snapshot can never
// overwrite a newer one.
type livePreeditEntry struct {
	revision uint64
	visible  bool
	text     string
}

type livePreeditStore struct {
	mu      sync.Mutex
	entries map[uint64]livePreeditEntry
}

func newLivePreeditStore() *livePreeditStore {
	return &livePreeditStore{entries: make(map[uint64]livePreeditEntry)}
}

func (s *livePreeditStore) set(sessionID, revision uint64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[sessionID]; ok && existing.revision >= revision {
		return
	}
	s.entries[sessionID] = livePreeditEntry{revision: revision, visible: true, text: text}
}

func (s *livePreeditStore) clear(sessionID, revision uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[sessionID]; ok && existing.revision >= revision {
		return
	}
	s.entries[sessionID] = livePreeditEntry{revision: revision}
}

func (s *livePreeditStore) forSession(sessionID uint64) (uint64, bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return 0, false, ""
	}
	return entry.revision, entry.visible, entry.text
}

func (s *livePreeditStore) remove(sessionID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
}
