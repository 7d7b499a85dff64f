// Package history persists committed transcripts to a local SQLite
// database so dictated text can be reviewed and re-inserted later.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Schema for the transcript history store.
const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id      INTEGER NOT NULL,
    engine_id       INTEGER NOT NULL,
    text            TEXT NOT NULL,
    committed_ns    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcripts_committed ON transcripts(committed_ns);
CREATE INDEX IF NOT EXISTS idx_transcripts_session ON transcripts(session_id, committed_ns);
`

// Transcript is one committed dictation result.
type Transcript struct {
	ID          int64
	SessionID   uint64
	EngineID    uint64
	Text        string
	CommittedAt time.Time
}

// Store is the SQLite transcript history store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Append records a committed transcript and returns its ID.
func (s *Store) Append(sessionID, engineID uint64, text string, committedAt time.Time) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO transcripts (session_id, engine_id, text, committed_ns)
		VALUES (?, ?, ?, ?)`,
		int64(sessionID), int64(engineID), text, committedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert transcript: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// Recent returns the most recent transcripts, newest first.
func (s *Store) Recent(limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT id, session_id, engine_id, text, committed_ns
		FROM transcripts
		ORDER BY committed_ns DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var out []Transcript
	for rows.Next() {
		var tr Transcript
		var sessionID, engineID, committedNs int64
		if err := rows.Scan(&tr.ID, &sessionID, &engineID, &tr.Text, &committedNs); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		tr.SessionID = uint64(sessionID)
		tr.EngineID = uint64(engineID)
		tr.CommittedAt = time.Unix(0, committedNs)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// BySession returns all transcripts for a session in commit order.
func (s *Store) BySession(sessionID uint64) ([]Transcript, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, engine_id, text, committed_ns
		FROM transcripts
		WHERE session_id = ?
		ORDER BY committed_ns ASC, id ASC`, int64(sessionID))
	if err != nil {
		return nil, fmt.Errorf("query session transcripts: %w", err)
	}
	defer rows.Close()

	var out []Transcript
	for rows.Next() {
		var tr Transcript
		var sid, engineID, committedNs int64
		if err := rows.Scan(&tr.ID, &sid, &engineID, &tr.Text, &committedNs); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		tr.SessionID = uint64(sid)
		tr.EngineID = uint64(engineID)
		tr.CommittedAt = time.Unix(0, committedNs)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Prune deletes transcripts committed before the cutoff and returns the
// number removed.
func (s *Store) Prune(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM transcripts WHERE committed_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune transcripts: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of stored transcripts.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM transcripts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transcripts: %w", err)
	}
	return n, nil
}
