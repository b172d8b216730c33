package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/save-go/internal/agent"
	"github.com/comigor/save-go/internal/conversation"
	"github.com/comigor/save-go/internal/memory"
	"github.com/comigor/save-go/pkg/tools"
)

type mockAgent struct {
	ProcessFunc func(ctx context.Context, sessionID, text string, opts ...agent.TurnOption) (agent.Result, error)
}

func (m *mockAgent) Process(ctx context.Context, sessionID, text string, opts ...agent.TurnOption) (agent.Result, error) {
	return m.ProcessFunc(ctx, sessionID, text, opts...)
}

type mockSessions struct {
	reset []string
	stats memory.Stats
}

func (m *mockSessions) Reset(id string) { m.reset = append(m.reset, id) }

func (m *mockSessions) Stats(id string) memory.Stats {
	st := m.stats
	st.SessionID = id
	return st
}

func echoAgent() *mockAgent {
	return &mockAgent{ProcessFunc: func(_ context.Context, sessionID, text string, _ ...agent.TurnOption) (agent.Result, error) {
		return agent.Result{
			SessionID: sessionID,
			Answer:    "echo: " + text,
			Verdict:   conversation.Pass(),
			Products:  []conversation.Product{{UPC: "028400596008", Name: "Hot Fries", Source: "Example Database"}},
		}, nil
	}}
}

func newTestServer(a Agent, s *mockSessions) *Server {
	reg := tools.NewRegistry()
	_ = reg.Register(tools.NewUPCValidator())
	return New(a, s, reg)
}

func TestChat(t *testing.T) {
	srv := newTestServer(echoAgent(), &mockSessions{})
	req := httptest.NewRequest(http.MethodPost, "/api/agent/chat", strings.NewReader(`{"message":"hi there","session_id":"abc"}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "echo: hi there", body.Response)
	require.Equal(t, "abc", body.SessionID)
	require.Equal(t, "PASS", body.Verdict)
	require.Len(t, body.Products, 1)
}

func TestChat_GeneratesSessionID(t *testing.T) {
	srv := newTestServer(echoAgent(), &mockSessions{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/chat", strings.NewReader(`{"message":"hi"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var body chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.SessionID, 36)
}

func TestChat_BadRequests(t *testing.T) {
	srv := newTestServer(echoAgent(), &mockSessions{})
	for _, body := range []string{`{"message":"   "}`, `not json`} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/chat", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agent/chat", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestChat_AgentErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{errors.Join(agent.ErrResponder, errors.New("boom")), http.StatusBadGateway},
		{errors.Join(agent.ErrCancelled, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		a := &mockAgent{ProcessFunc: func(context.Context, string, string, ...agent.TurnOption) (agent.Result, error) {
			return agent.Result{}, tc.err
		}}
		rec := httptest.NewRecorder()
		newTestServer(a, &mockSessions{}).ServeHTTP(rec,
			httptest.NewRequest(http.MethodPost, "/api/agent/chat", strings.NewReader(`{"message":"hi"}`)))
		require.Equal(t, tc.code, rec.Code)
		require.Contains(t, rec.Body.String(), "failed to process request")
	}
}

func TestChatSSE(t *testing.T) {
	a := &mockAgent{ProcessFunc: func(_ context.Context, sessionID, text string, opts ...agent.TurnOption) (agent.Result, error) {
		var o agent.TurnOptions
		for _, opt := range opts {
			opt(&o)
		}
		o.Progress(agent.Event{SessionID: sessionID, From: agent.StateDispatchOrAnswer, To: agent.StateValidate, Trigger: string(agent.TriggerAnswerReady)})
		o.Progress(agent.Event{SessionID: sessionID, From: agent.StateValidate, To: agent.StateDone, Trigger: string(agent.TriggerPassed)})
		return agent.Result{SessionID: sessionID, Answer: "final", Verdict: conversation.Pass()}, nil
	}}
	srv := newTestServer(a, &mockSessions{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agent/chat/stream-sse?message=hello&session_id=s1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	out := rec.Body.String()
	require.Equal(t, 2, strings.Count(out, "event: progress"))
	require.Contains(t, out, `"to":"Validate"`)
	require.Contains(t, out, "event: response")
	require.Contains(t, out, `"response":"final"`)
	require.Less(t, strings.Index(out, "event: start"), strings.Index(out, "event: progress"))
}

func TestChatSSE_Error(t *testing.T) {
	a := &mockAgent{ProcessFunc: func(context.Context, string, string, ...agent.TurnOption) (agent.Result, error) {
		return agent.Result{}, agent.ErrResponder
	}}
	rec := httptest.NewRecorder()
	newTestServer(a, &mockSessions{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agent/chat/stream-sse?message=hello", nil))
	require.Contains(t, rec.Body.String(), "event: error")
	require.NotContains(t, rec.Body.String(), "event: response")
}

func TestCapabilities(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(echoAgent(), &mockSessions{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agent/capabilities", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tools []toolResponse `json:"tools"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	require.Equal(t, tools.UPCValidatorName, body.Tools[0].Name)
}

func TestResetAndStats(t *testing.T) {
	sessions := &mockSessions{stats: memory.Stats{ActiveSessions: 2, TotalSessions: 3, MessageCount: 4}}
	srv := newTestServer(echoAgent(), sessions)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/reset", strings.NewReader(`{"session_id":"s9"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/agent/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"s9", memory.DefaultSessionID}, sessions.reset)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/memory/stats?session_id=s9", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st memory.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, "s9", st.SessionID)
	require.Equal(t, 2, st.ActiveSessions)
	require.Equal(t, 4, st.MessageCount)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(echoAgent(), &mockSessions{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"healthy"`)
}
