// Package validator grades a candidate answer before it is delivered.
package validator

import (
	"context"
	"regexp"
	"strings"

	"github.com/comigor/save-go/internal/conversation"
	"github.com/comigor/save-go/internal/llm"
	"github.com/comigor/save-go/internal/logger"
)

// DefaultMaxMessages is the conversation length past which validation ends the turn.
const DefaultMaxMessages = 30

// Judge grades an answer and returns free-form text containing a PASS or FAIL marker.
type Judge interface {
	Judge(ctx context.Context, query, answer string) (string, error)
}

// Validator returns PASS, FAIL(reason) or END for the latest answer in a conversation.
// It keeps no state between calls and never invokes tools.
type Validator struct {
	judge       Judge
	maxMessages int
	offTopic    func(query string) bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxMessages sets the loop-limit ceiling.
func WithMaxMessages(n int) Option {
	return func(v *Validator) { v.maxMessages = n }
}

// WithTopicFilter replaces the off-topic query predicate.
func WithTopicFilter(fn func(query string) bool) Option {
	return func(v *Validator) { v.offTopic = fn }
}

// New creates a Validator.
func New(judge Judge, opts ...Option) *Validator {
	v := &Validator{
		judge:       judge,
		maxMessages: DefaultMaxMessages,
		offTopic:    IsOffTopicQuery,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate grades the last content-only assistant message of msgs against the user
// query that preceded it.
func (v *Validator) Validate(ctx context.Context, msgs []conversation.Message) conversation.Verdict {
	log := logger.For("validator")

	if len(msgs) > v.maxMessages {
		log.Warn("loop limit reached", "messages", len(msgs), "limit", v.maxMessages)
		return conversation.End()
	}

	idx := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsAnswer() {
			idx = i
			break
		}
	}
	if idx < 0 {
		return conversation.Fail("no answer to validate")
	}
	answer := msgs[idx].Content
	query := ""
	if u, ok := conversation.LastUserBefore(msgs, idx); ok {
		query = u.Content
	}

	switch {
	case IsRedirect(answer):
		log.Debug("exempt: off-topic redirect")
		return conversation.Pass()
	case v.offTopic(query):
		log.Debug("exempt: off-topic query")
		return conversation.Pass()
	case HasAuthoritativeHit(msgs):
		log.Debug("exempt: authoritative source hit")
		return conversation.Pass()
	}

	return v.Judge(ctx, query, answer)
}

// Judge runs the judgment capability and classifies its output, failing closed.
func (v *Validator) Judge(ctx context.Context, query, answer string) conversation.Verdict {
	if v.judge == nil {
		return conversation.Fail("validation judgment unavailable")
	}
	text, err := v.judge.Judge(ctx, query, answer)
	if err != nil {
		logger.For("validator").Warn("judgment failed", "error", err)
		return conversation.Fail("validation judgment unavailable: " + err.Error())
	}
	return Classify(text)
}

var (
	passMarker = regexp.MustCompile(`^\W*PASS\b`)
	failMarker = regexp.MustCompile(`\bFAIL`)
)

// Classify maps judgment text to a verdict. Only text that starts with a PASS marker
// and carries no FAIL marker passes; anything else fails with the text as reason.
func Classify(text string) conversation.Verdict {
	trimmed := strings.TrimSpace(text)
	upper := strings.ToUpper(trimmed)
	if passMarker.MatchString(upper) && !failMarker.MatchString(upper) {
		return conversation.Pass()
	}
	return conversation.Fail(trimmed)
}

// IsRedirect reports whether answer is the off-topic redirect template.
func IsRedirect(answer string) bool {
	return strings.Contains(normalizeSpace(answer), llm.OffTopicSignature)
}

// HasAuthoritativeHit reports whether any tool result came from a priority source
// reporting a definitive match.
func HasAuthoritativeHit(msgs []conversation.Message) bool {
	for _, m := range msgs {
		if m.Role == conversation.RoleTool && m.Authoritative {
			return true
		}
	}
	return false
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
