package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/save-go/internal/conversation"
	"github.com/comigor/save-go/internal/logger"
)

// ErrEmptyResponse is returned when the model returns no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

// Responder maps a conversation to the next assistant message using a chat model with
// the tool definitions bound once at construction.
type Responder struct {
	client       Client
	model        string
	tools        []openai.Tool
	systemPrompt string
}

// NewResponder binds the tool definitions to a chat client. An empty systemPrompt uses
// AssistantPrompt.
func NewResponder(client Client, model, systemPrompt string, tools []openai.Tool) *Responder {
	if systemPrompt == "" {
		systemPrompt = AssistantPrompt
	}
	return &Responder{
		client:       client,
		model:        model,
		tools:        tools,
		systemPrompt: systemPrompt,
	}
}

// Respond returns the next assistant message, either content-only or carrying tool calls.
func (r *Responder) Respond(ctx context.Context, history []conversation.Message, mode conversation.Mode) (conversation.Message, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: r.systemPrompt})
	if mode.Regenerate != nil {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: RegenerationPrompt(*mode.Regenerate),
		})
	}
	msgs = append(msgs, ToOpenAI(history)...)

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    r.model,
		Messages: msgs,
		Tools:    r.tools,
	})
	if err != nil {
		return conversation.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return conversation.Message{}, ErrEmptyResponse
	}
	logger.For("responder").Debug("model response received", "finish_reason", resp.Choices[0].FinishReason, "usage", resp.Usage.TotalTokens)
	return FromOpenAI(resp.Choices[0].Message), nil
}

// ToOpenAI converts conversation messages to chat completion messages.
func ToOpenAI(history []conversation.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case conversation.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case conversation.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case conversation.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				Name:       m.ToolName,
				ToolCallID: m.ToolCallID,
			})
		case conversation.RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, msg)
		}
	}
	return out
}

// FromOpenAI converts a model message into an assistant message. Tool calls without an
// id get a generated one so results can be correlated.
func FromOpenAI(msg openai.ChatCompletionMessage) conversation.Message {
	calls := make([]conversation.ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		calls = append(calls, conversation.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: []byte(args),
		})
	}
	return conversation.Assistant(msg.Content, calls...)
}

// Judge asks a chat model to grade an answer against the validation rubric.
type Judge struct {
	client Client
	model  string
}

// NewJudge creates a Judge.
func NewJudge(client Client, model string) *Judge {
	return &Judge{client: client, model: model}
}

// Judge returns the model's free-form verdict text.
func (j *Judge) Judge(ctx context.Context, query, answer string) (string, error) {
	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       j.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(ValidationPrompt, query, answer)},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
