// Package conversation defines the message and verdict values that flow through a turn.
//
// A Message is a tagged variant over user, assistant, tool and system messages. Values are
// never mutated after construction; a conversation is an append-only []Message.
package conversation

import (
	"encoding/json"
	"time"
)

// Role tags the variant of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// ToolCall is a request from the Responder to invoke a named tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Product is the structured record a lookup tool attaches to its result.
type Product struct {
	UPC    string `json:"upc"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

// Message is one entry of a conversation.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Tool results only.
	ToolName      string   `json:"tool_name,omitempty"`
	ToolCallID    string   `json:"tool_call_id,omitempty"`
	Authoritative bool     `json:"authoritative,omitempty"`
	Product       *Product `json:"product,omitempty"`

	// Summary marks the synthetic system message produced by memory summarization.
	Summary bool `json:"summary,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// User builds a user message.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content, CreatedAt: time.Now()}
}

// System builds a system message.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content, CreatedAt: time.Now()}
}

// Assistant builds an assistant message, optionally carrying tool-call requests.
func Assistant(content string, calls ...ToolCall) Message {
	var cc []ToolCall
	if len(calls) > 0 {
		cc = append(cc, calls...)
	}
	return Message{Role: RoleAssistant, Content: content, ToolCalls: cc, CreatedAt: time.Now()}
}

// ToolResult builds a tool-result message tagged with the producing tool.
func ToolResult(name, callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolName: name, ToolCallID: callID, CreatedAt: time.Now()}
}

// SummaryNote builds the synthetic summary message that replaces evicted history.
func SummaryNote(content string) Message {
	m := System(content)
	m.Summary = true
	return m
}

// HasToolCalls reports whether the message requests tools.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// IsAnswer reports whether the message is a content-only assistant reply.
func (m Message) IsAnswer() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) == 0
}

// Clone returns a copy of msgs whose backing array is not shared.
func Clone(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// LastAnswer returns the most recent content-only assistant message.
func LastAnswer(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].IsAnswer() {
			return msgs[i], true
		}
	}
	return Message{}, false
}

// LastUserBefore returns the latest user message strictly before index i.
func LastUserBefore(msgs []Message, i int) (Message, bool) {
	if i > len(msgs) {
		i = len(msgs)
	}
	for j := i - 1; j >= 0; j-- {
		if msgs[j].Role == RoleUser {
			return msgs[j], true
		}
	}
	return Message{}, false
}

// ToolResults returns the tool-result messages in conversation order.
func ToolResults(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if m.Role == RoleTool {
			out = append(out, m)
		}
	}
	return out
}

// LastToolResult returns the most recent tool-result message.
func LastToolResult(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleTool {
			return msgs[i], true
		}
	}
	return Message{}, false
}
