package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"

	"github.com/comigor/save-go/internal/conversation"
)

type mockLLM struct {
	calls    []openai.ChatCompletionResponse
	err      error
	requests []openai.ChatCompletionRequest
}

func (m *mockLLM) CreateChatCompletion(_ context.Context, r openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.requests = append(m.requests, r)
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	if len(m.calls) == 0 {
		panic("mockLLM: no more responses configured")
	}
	resp := m.calls[0]
	m.calls = m.calls[1:]
	return resp, nil
}

func reply(msg openai.ChatCompletionMessage) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: msg}}}
}

func TestRespond_NormalMode(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{
		reply(openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "Hello"}),
	}}
	tools := []openai.Tool{{Type: openai.ToolTypeFunction, Function: &openai.FunctionDefinition{Name: "upc_validator"}}}
	r := NewResponder(client, "gpt-test", "", tools)

	msg, err := r.Respond(context.Background(), []conversation.Message{conversation.User("hi")}, conversation.Normal())
	require.NoError(t, err)
	require.Equal(t, conversation.RoleAssistant, msg.Role)
	require.Equal(t, "Hello", msg.Content)
	require.False(t, msg.HasToolCalls())

	req := client.requests[0]
	require.Equal(t, "gpt-test", req.Model)
	require.Equal(t, tools, req.Tools)
	require.Len(t, req.Messages, 2)
	require.Equal(t, AssistantPrompt, req.Messages[0].Content)
	require.Equal(t, "hi", req.Messages[1].Content)
}

func TestRespond_RegenerateModeEmbedsGuidance(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{
		reply(openai.ChatCompletionMessage{Content: "better"}),
	}}
	r := NewResponder(client, "gpt-test", "custom prompt", nil)
	mode := conversation.Mode{Regenerate: &conversation.Regeneration{
		Reason:      "FAIL - missing Ingredients section",
		Evidence:    []string{"openfoodfacts_lookup: Hot Fries"},
		PriorAnswer: "Brand: Chester's",
	}}

	_, err := r.Respond(context.Background(), []conversation.Message{conversation.User("028400596008")}, mode)
	require.NoError(t, err)

	req := client.requests[0]
	require.Len(t, req.Messages, 3)
	require.Equal(t, "custom prompt", req.Messages[0].Content)
	require.Equal(t, openai.ChatMessageRoleSystem, req.Messages[1].Role)
	require.Contains(t, req.Messages[1].Content, "missing Ingredients section")
	require.Contains(t, req.Messages[1].Content, "[1] openfoodfacts_lookup: Hot Fries")
	require.Contains(t, req.Messages[1].Content, "Brand: Chester's")
}

func TestRespond_ToolCalls(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{
		reply(openai.ChatCompletionMessage{ToolCalls: []openai.ToolCall{
			{ID: "call_a", Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "upc_validator", Arguments: `{"upc":"1"}`}},
			{Type: openai.ToolTypeFunction, Function: openai.FunctionCall{Name: "web_search"}},
		}}),
	}}
	r := NewResponder(client, "m", "", nil)

	msg, err := r.Respond(context.Background(), nil, conversation.Normal())
	require.NoError(t, err)
	require.True(t, msg.HasToolCalls())
	require.Len(t, msg.ToolCalls, 2)
	require.Equal(t, "call_a", msg.ToolCalls[0].ID)
	require.JSONEq(t, `{"upc":"1"}`, string(msg.ToolCalls[0].Arguments))
	require.True(t, strings.HasPrefix(msg.ToolCalls[1].ID, "call_"))
	require.Equal(t, "{}", string(msg.ToolCalls[1].Arguments))
}

func TestRespond_Errors(t *testing.T) {
	r := NewResponder(&mockLLM{err: errors.New("503")}, "m", "", nil)
	_, err := r.Respond(context.Background(), nil, conversation.Normal())
	require.ErrorContains(t, err, "503")

	r = NewResponder(&mockLLM{calls: []openai.ChatCompletionResponse{{}}}, "m", "", nil)
	_, err = r.Respond(context.Background(), nil, conversation.Normal())
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestToOpenAI(t *testing.T) {
	history := []conversation.Message{
		conversation.System("sys"),
		conversation.User("q"),
		conversation.Assistant("", conversation.ToolCall{ID: "c1", Name: "upc_validator", Arguments: []byte(`{}`)}),
		conversation.ToolResult("upc_validator", "c1", "Valid UPC-A"),
		conversation.Assistant("done"),
	}
	out := ToOpenAI(history)
	require.Len(t, out, 5)
	require.Equal(t, openai.ChatMessageRoleSystem, out[0].Role)
	require.Equal(t, "upc_validator", out[2].ToolCalls[0].Function.Name)
	require.Equal(t, openai.ChatMessageRoleTool, out[3].Role)
	require.Equal(t, "c1", out[3].ToolCallID)
	require.Equal(t, "done", out[4].Content)
}

func TestJudge(t *testing.T) {
	client := &mockLLM{calls: []openai.ChatCompletionResponse{
		reply(openai.ChatCompletionMessage{Content: "PASS - complete"}),
	}}
	text, err := NewJudge(client, "judge-model").Judge(context.Background(), "what is 028400596008", "Brand: X")
	require.NoError(t, err)
	require.Equal(t, "PASS - complete", text)

	req := client.requests[0]
	require.Equal(t, "judge-model", req.Model)
	require.Zero(t, req.Temperature)
	require.Contains(t, req.Messages[0].Content, "USER QUERY: what is 028400596008")
	require.Contains(t, req.Messages[0].Content, "RESPONSE TO VALIDATE: Brand: X")
	require.Contains(t, req.Messages[0].Content, "Beverage % Juice")
}

func TestRegenerationPrompt_ByKind(t *testing.T) {
	base := conversation.Regeneration{Reason: "FAIL - no sources", PriorAnswer: "prior"}

	general := RegenerationPrompt(base)
	require.Contains(t, general, "(none)")
	require.Contains(t, general, "**Beverage % Juice**")
	require.Contains(t, general, "DO NOT repeat tool calls")

	base.Kind = conversation.QueryTargeted
	require.Contains(t, RegenerationPrompt(base), "specific information")

	base.Kind = conversation.QueryFollowUp
	require.Contains(t, RegenerationPrompt(base), "follow-up")
}
