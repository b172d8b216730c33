// Package memory keeps per-session conversation history within message and token
// budgets, and expires idle sessions.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/comigor/save-go/internal/config"
	"github.com/comigor/save-go/internal/conversation"
	"github.com/comigor/save-go/internal/logger"
)

// DefaultSessionID is used when a caller does not supply a session id.
const DefaultSessionID = "default"

// Limits bounds a session.
type Limits struct {
	MaxMessages       int
	KeepRecent        int
	MaxTokens         int
	SummaryWindow     int
	SummaryKeep       int
	SessionTimeout    time.Duration
	CleanupInterval   time.Duration
	ValidationHistory int
}

// DefaultLimits mirrors the configuration defaults.
var DefaultLimits = Limits{
	MaxMessages:       15,
	KeepRecent:        10,
	MaxTokens:         6000,
	SummaryWindow:     8,
	SummaryKeep:       6,
	SessionTimeout:    30 * time.Minute,
	CleanupInterval:   5 * time.Minute,
	ValidationHistory: 10,
}

// LimitsFromConfig converts configuration, keeping defaults for unset values.
func LimitsFromConfig(cfg config.MemoryConfig) Limits {
	l := DefaultLimits
	set := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	set(&l.MaxMessages, cfg.MaxMessages)
	set(&l.KeepRecent, cfg.KeepRecent)
	set(&l.MaxTokens, cfg.MaxTokens)
	set(&l.SummaryWindow, cfg.SummaryWindow)
	set(&l.SummaryKeep, cfg.SummaryKeep)
	set(&l.ValidationHistory, cfg.ValidationHistory)
	if cfg.SessionTimeout > 0 {
		l.SessionTimeout = cfg.SessionTimeout
	}
	if cfg.CleanupInterval > 0 {
		l.CleanupInterval = cfg.CleanupInterval
	}
	return l
}

// Archive persists committed messages beyond the process lifetime.
type Archive interface {
	Save(ctx context.Context, sessionID string, msg conversation.Message) error
	Since(ctx context.Context, sessionID string, t time.Time) ([]conversation.Message, error)
	Forget(ctx context.Context, sessionID string) error
}

// Stats is an observability snapshot. It does not drive control flow.
type Stats struct {
	ActiveSessions  int       `json:"active_sessions"`
	TotalSessions   int       `json:"total_sessions"`
	ExpiredSessions int       `json:"expired_sessions"`
	SessionID       string    `json:"session_id,omitempty"`
	MessageCount    int       `json:"message_count"`
	Tokens          int       `json:"tokens"`
	LastActivity    time.Time `json:"last_activity,omitzero"`
}

// Manager owns every Session.
type Manager struct {
	limits  Limits
	counter TokenCounter
	archive Archive
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithTokenCounter replaces the tokenizer.
func WithTokenCounter(c TokenCounter) Option {
	return func(m *Manager) { m.counter = c }
}

// WithArchive persists committed messages and restores recent ones for new sessions.
func WithArchive(a Archive) Option {
	return func(m *Manager) { m.archive = a }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager.
func NewManager(limits Limits, opts ...Option) *Manager {
	m := &Manager{
		limits:   limits,
		counter:  NewTiktokenCounter(""),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func normalizeID(id string) string {
	if id == "" {
		return DefaultSessionID
	}
	return id
}

// GetOrCreate returns the session for id, creating an empty one on first access.
// With an archive configured, a new session is seeded with the messages it archived
// inside the timeout window.
func (m *Manager) GetOrCreate(id string) *Session {
	id = normalizeID(id)

	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s
	}
	s = newSession(id, m.now())
	m.restore(s)
	m.sessions[id] = s
	return s
}

func (m *Manager) restore(s *Session) {
	if m.archive == nil {
		return
	}
	log := logger.Session("memory", s.id)
	msgs, err := m.archive.Since(context.Background(), s.id, m.now().Add(-m.limits.SessionTimeout))
	if err != nil {
		log.Warn("archive restore failed", "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}
	s.messages = msgs
	s.lastActivity = msgs[len(msgs)-1].CreatedAt
	s.manage(m.limits, m.counter)
	log.Info("session restored from archive", "messages", len(s.messages))
}

// Append adds one message and runs memory management.
func (m *Manager) Append(id string, msg conversation.Message) {
	m.Commit(id, msg)
}

// Commit appends msgs in order as one unit; no other append to the session can
// interleave. Memory management runs after each message.
func (m *Manager) Commit(id string, msgs ...conversation.Message) {
	s := m.GetOrCreate(id)
	log := logger.Session("memory", s.id)

	s.mu.Lock()
	for _, msg := range msgs {
		s.messages = append(s.messages, msg)
		s.lastActivity = m.now()
		evicted, summarized := s.manage(m.limits, m.counter)
		if evicted || summarized {
			log.Info("history trimmed", "evicted", evicted, "summarized", summarized,
				"messages", len(s.messages), "tokens", s.tokens)
		}
	}
	s.mu.Unlock()

	if m.archive == nil {
		return
	}
	for _, msg := range msgs {
		if err := m.archive.Save(context.Background(), s.id, msg); err != nil {
			log.Warn("archive save failed", "error", err)
		}
	}
}

// Snapshot returns a copy of the session history.
func (m *Manager) Snapshot(id string) []conversation.Message {
	return m.GetOrCreate(id).Messages()
}

// RecordValidation adds an entry to the bounded validation history and makes it the
// current product context.
func (m *Manager) RecordValidation(id string, v Validation) {
	s := m.GetOrCreate(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.At.IsZero() {
		v.At = m.now()
	}
	s.validations = append(s.validations, v)
	if n := m.limits.ValidationHistory; n > 0 && len(s.validations) > n {
		s.validations = append([]Validation(nil), s.validations[len(s.validations)-n:]...)
	}
	if s.product.UPC != "" && s.product.UPC != v.UPC {
		s.product.Corrections = append(s.product.Corrections, s.product.UPC+" -> "+v.UPC)
	}
	s.product.UPC = v.UPC
	s.product.Name = v.Name
	s.product.Status = v.Status
}

// ExpireIfIdle clears the session when it has been idle longer than the timeout. The
// session id stays usable. It reports whether the session was cleared.
func (m *Manager) ExpireIfIdle(id string) bool {
	id = normalizeID(id)
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	s.mu.Lock()
	idle := m.now().Sub(s.lastActivity) > m.limits.SessionTimeout
	if idle {
		s.clear()
		s.lastActivity = m.now()
	}
	s.mu.Unlock()

	if idle {
		logger.Session("memory", id).Info("session expired")
		m.forget(id)
	}
	return idle
}

// Reset clears the session unconditionally.
func (m *Manager) Reset(id string) {
	s := m.GetOrCreate(id)
	s.mu.Lock()
	s.clear()
	s.lastActivity = m.now()
	s.mu.Unlock()
	m.forget(s.id)
}

func (m *Manager) forget(id string) {
	if m.archive == nil {
		return
	}
	if err := m.archive.Forget(context.Background(), id); err != nil {
		logger.Session("memory", id).Warn("archive forget failed", "error", err)
	}
}

// Sweep expires every idle session and returns how many were cleared.
func (m *Manager) Sweep() int {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	n := 0
	for _, id := range ids {
		if m.ExpireIfIdle(id) {
			n++
		}
	}
	return n
}

// Run sweeps idle sessions every cleanup interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.limits.CleanupInterval
	if interval <= 0 {
		interval = DefaultLimits.CleanupInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				logger.For("memory").Info("expired idle sessions", "count", n)
			}
		}
	}
}

// Stats reports manager-wide counts and, when id is known, that session's figures.
func (m *Manager) Stats(id string) Stats {
	id = normalizeID(id)
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var st Stats
	st.TotalSessions = len(m.sessions)
	for sid, s := range m.sessions {
		s.mu.Lock()
		if now.Sub(s.lastActivity) > m.limits.SessionTimeout {
			st.ExpiredSessions++
		} else {
			st.ActiveSessions++
		}
		if sid == id {
			st.SessionID = sid
			st.MessageCount = len(s.messages)
			st.Tokens = s.tokens
			st.LastActivity = s.lastActivity
		}
		s.mu.Unlock()
	}
	return st
}
