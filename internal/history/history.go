// Package history provides SQLite-based persistence for session transcripts.
// If opening the DB or executing queries fails, the store falls back to in-memory storage.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/save-go/internal/conversation"
	"github.com/comigor/save-go/internal/logger"
)

// Record is a single persisted message.
type Record struct {
	ID        int64
	SessionID string
	Message   conversation.Message
}

// Store archives committed messages per session.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	records []Record // in-memory fallback
	nextID  int64
}

// Open opens (creating if needed) the SQLite database at path. An empty path, or a
// database that cannot be opened, yields an in-memory store.
func Open(path string) *Store {
	s := &Store{}
	if path == "" {
		return s
	}
	log := logger.For("history")

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		log.Warn("sqlite open failed; using in-memory history", "error", err)
		return s
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT,
		summary INTEGER NOT NULL DEFAULT 0,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS messages_session ON messages (session_id, created_at);`); err != nil {
		log.Warn("sqlite table creation failed; using in-memory history", "error", err)
		_ = db.Close()
		return s
	}
	s.db = db
	log.Info("sqlite history DB initialized", "path", path)
	return s
}

// Persistent reports whether the store is backed by SQLite.
func (s *Store) Persistent() bool { return s.db != nil }

// Save persists a message. A failed write falls back to memory.
func (s *Store) Save(ctx context.Context, sessionID string, msg conversation.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if s.db != nil {
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, content, summary, payload, created_at) VALUES (?,?,?,?,?,?);`,
			sessionID, string(msg.Role), msg.Content, msg.Summary, string(payload), msg.CreatedAt.UnixNano())
		if err == nil {
			return nil
		}
		logger.Session("history", sessionID).Error("failed to store message in sqlite; falling back to memory", "error", err)
	}

	s.mu.Lock()
	s.nextID++
	s.records = append(s.records, Record{ID: s.nextID, SessionID: sessionID, Message: msg})
	s.mu.Unlock()
	return nil
}

// Since returns the session's messages created at or after t, oldest first.
func (s *Store) Since(ctx context.Context, sessionID string, t time.Time) ([]conversation.Message, error) {
	var out []conversation.Message
	if s.db != nil {
		rows, err := s.db.QueryContext(ctx,
			`SELECT payload FROM messages WHERE session_id = ? AND created_at >= ? ORDER BY id ASC;`,
			sessionID, t.UnixNano())
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var payload string
			if err := rows.Scan(&payload); err != nil {
				return nil, err
			}
			var m conversation.Message
			if err := json.Unmarshal([]byte(payload), &m); err != nil {
				return nil, err
			}
			out = append(out, m)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	for _, r := range s.records {
		if r.SessionID == sessionID && !r.Message.CreatedAt.Before(t) {
			out = append(out, r.Message)
		}
	}
	s.mu.Unlock()
	return out, nil
}

// Forget deletes every message of the session.
func (s *Store) Forget(ctx context.Context, sessionID string) error {
	if s.db != nil {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?;`, sessionID); err != nil {
			return err
		}
	}
	s.mu.Lock()
	kept := s.records[:0]
	for _, r := range s.records {
		if r.SessionID != sessionID {
			kept = append(kept, r)
		}
	}
	s.records = kept
	s.mu.Unlock()
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
