// Package server exposes the agent over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/comigor/save-go/internal/agent"
	"github.com/comigor/save-go/internal/logger"
	"github.com/comigor/save-go/internal/memory"
	"github.com/comigor/save-go/pkg/tools"
)

// Agent runs one turn per inbound message.
type Agent interface {
	Process(ctx context.Context, sessionID, text string, opts ...agent.TurnOption) (agent.Result, error)
}

// Sessions is the part of the memory manager the API exposes.
type Sessions interface {
	Reset(id string)
	Stats(id string) memory.Stats
}

// Catalog lists the registered tools.
type Catalog interface {
	List() []tools.Tool
}

// Server routes API requests.
type Server struct {
	agent    Agent
	sessions Sessions
	catalog  Catalog
	mux      *http.ServeMux
}

// New creates a Server with its routes registered.
func New(a Agent, sessions Sessions, catalog Catalog) *Server {
	s := &Server{agent: a, sessions: sessions, catalog: catalog, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /api/agent/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/agent/chat/stream-sse", s.handleChatSSE)
	s.mux.HandleFunc("GET /api/agent/capabilities", s.handleCapabilities)
	s.mux.HandleFunc("POST /api/agent/reset", s.handleReset)
	s.mux.HandleFunc("GET /api/memory/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	logger.L.Info("starting server", "address", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response      string            `json:"response"`
	SessionID     string            `json:"session_id"`
	Verdict       string            `json:"verdict"`
	Authoritative bool              `json:"authoritative"`
	Regenerations int               `json:"regenerations"`
	Products      []productResponse `json:"products,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

type productResponse struct {
	UPC    string `json:"upc"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

func newChatResponse(res agent.Result) chatResponse {
	out := chatResponse{
		Response:      res.Answer,
		SessionID:     res.SessionID,
		Verdict:       res.Verdict.String(),
		Authoritative: res.Authoritative,
		Regenerations: res.Regenerations,
		Timestamp:     time.Now().UTC(),
	}
	for _, p := range res.Products {
		out.Products = append(out.Products, productResponse{UPC: p.UPC, Name: p.Name, Source: p.Source})
	}
	return out
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	log := logger.Session("server", req.SessionID)
	log.Info("chat request", "message", req.Message)

	res, err := s.agent.Process(r.Context(), req.SessionID, req.Message)
	if err != nil {
		log.Error("process error", "error", err)
		writeError(w, statusFor(err), "failed to process request")
		return
	}
	writeJSON(w, http.StatusOK, newChatResponse(res))
}

func (s *Server) handleChatSSE(w http.ResponseWriter, r *http.Request) {
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(event string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	send("start", map[string]string{"session_id": sessionID})
	res, err := s.agent.Process(r.Context(), sessionID, message, agent.WithProgress(func(e agent.Event) {
		send("progress", e)
	}))
	if err != nil {
		logger.Session("server", sessionID).Error("process error", "error", err)
		send("error", map[string]string{"error": "failed to process request"})
		return
	}
	send("response", newChatResponse(res))
}

type toolResponse struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Authoritative bool   `json:"authoritative"`
}

func (s *Server) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	list := s.catalog.List()
	out := make([]toolResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toolResponse{Name: t.Name, Description: t.Description, Authoritative: t.Authoritative})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out, "count": len(out)})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	if req.SessionID == "" {
		req.SessionID = memory.DefaultSessionID
	}
	s.sessions.Reset(req.SessionID)
	logger.Session("server", req.SessionID).Info("session reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "session_id": req.SessionID})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Stats(r.URL.Query().Get("session_id")))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "timestamp": time.Now().UTC()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, agent.ErrResponder):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.For("server").Warn("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
