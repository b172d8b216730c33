package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/comigor/save-go/internal/conversation"
)

// Validation is one entry of a session's validation history.
type Validation struct {
	UPC    string    `json:"upc"`
	Name   string    `json:"name"`
	Status string    `json:"status"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// ProductContext tracks the product the conversation is currently about.
type ProductContext struct {
	UPC         string   `json:"upc,omitempty"`
	Name        string   `json:"name,omitempty"`
	Status      string   `json:"status,omitempty"`
	Corrections []string `json:"corrections,omitempty"`
}

// Session is the bounded history of one conversation. Only the Manager mutates it;
// accessors return copies.
type Session struct {
	id string

	mu           sync.Mutex
	messages     []conversation.Message
	validations  []Validation
	product      ProductContext
	createdAt    time.Time
	lastActivity time.Time
	tokens       int
}

func newSession(id string, now time.Time) *Session {
	return &Session{id: id, createdAt: now, lastActivity: now}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Messages returns a copy of the current history.
func (s *Session) Messages() []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conversation.Clone(s.messages)
}

// Validations returns a copy of the validation history, oldest first.
func (s *Session) Validations() []Validation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Validation(nil), s.validations...)
}

// Product returns the current product context.
func (s *Session) Product() ProductContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.product
	p.Corrections = append([]string(nil), s.product.Corrections...)
	return p
}

// LastActivity returns the time of the last mutation.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Tokens returns the token estimate computed after the last mutation.
func (s *Session) Tokens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

func (s *Session) clear() {
	s.messages = nil
	s.validations = nil
	s.product = ProductContext{}
	s.tokens = 0
}

// manage enforces the message ceiling and then the token budget. Caller holds s.mu.
func (s *Session) manage(l Limits, counter TokenCounter) (evicted, summarized bool) {
	if len(s.messages) > l.MaxMessages {
		keep, rest := splitSystem(s.messages, true)
		if len(rest) > l.KeepRecent {
			rest = rest[len(rest)-l.KeepRecent:]
		}
		s.messages = append(keep, rest...)
		evicted = true
	}

	s.tokens = estimateTokens(counter, s.messages)
	if s.tokens <= l.MaxTokens {
		return evicted, false
	}

	// Over budget: older content collapses into one summary; a previous summary is
	// replaced rather than kept.
	keep, rest := splitSystem(s.messages, false)
	if len(rest) <= l.SummaryKeep {
		return evicted, false
	}
	window := rest[max(0, len(rest)-l.SummaryWindow):]
	recent := window[len(window)-min(l.SummaryKeep, len(window)):]

	next := make([]conversation.Message, 0, len(keep)+1+len(recent))
	next = append(next, keep...)
	next = append(next, conversation.SummaryNote(s.summary()))
	next = append(next, recent...)
	s.messages = next
	s.tokens = estimateTokens(counter, s.messages)
	return evicted, true
}

// summary describes the evicted past from the validation history only.
func (s *Session) summary() string {
	count := len(s.validations)
	var names []string
	for _, v := range s.validations[max(0, count-3):] {
		if v.Name != "" {
			names = append(names, v.Name)
		}
	}
	if len(names) > 0 {
		return fmt.Sprintf("Previous conversation: Validated %d products including %s. User requested UPC validation, nutritional information, and ingredient details.",
			count, strings.Join(names, ", "))
	}
	return fmt.Sprintf("Previous conversation: User has validated %d products with UPC codes and requested nutritional/ingredient information.", count)
}

// splitSystem separates system messages from the rest, preserving order within each.
// Summary notes count as system messages only when keepSummary is set.
func splitSystem(msgs []conversation.Message, keepSummary bool) (system, rest []conversation.Message) {
	for _, m := range msgs {
		switch {
		case m.Role == conversation.RoleSystem && m.Summary:
			if keepSummary {
				system = append(system, m)
			}
		case m.Role == conversation.RoleSystem:
			system = append(system, m)
		default:
			rest = append(rest, m)
		}
	}
	return system, rest
}
