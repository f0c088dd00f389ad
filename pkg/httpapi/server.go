// Package httpapi exposes the engine over HTTP: session invocation,
// progress inspection, health probes, and Prometheus metrics.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dwagent/pkg/logx"
	"dwagent/pkg/persistence"
	"dwagent/pkg/phase"
	"dwagent/pkg/progress"
	"dwagent/pkg/proto"
)

// Server is the engine's HTTP front end.
type Server struct {
	registry *Registry
	store    *persistence.Store
	progress *progress.Recorder
	logger   *logx.Logger
}

// NewServer creates the HTTP API server.
func NewServer(registry *Registry, store *persistence.Store, recorder *progress.Recorder) *Server {
	return &Server{
		registry: registry,
		store:    store,
		progress: recorder,
		logger:   logx.NewLogger("httpapi"),
	}
}

// InvokeRequest is the body of POST /api/invoke. An empty SessionID starts
// a new session.
type InvokeRequest struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Message   string `json:"message"`
}

// InvokeResponse reports the session state after the loop returned control.
type InvokeResponse struct {
	SessionID       string `json:"session_id"`
	Response        string `json:"response,omitempty"`
	Status          string `json:"status"`
	Phase           int    `json:"phase"`
	PhaseName       string `json:"phase_name"`
	Iterations      int    `json:"iterations"`
	TokensUsed      int    `json:"tokens_used"`
	PendingQuestion string `json:"pending_question,omitempty"`
	FailureReason   string `json:"failure_reason,omitempty"`
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/invoke", s.handleInvoke)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSession)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())
}

// handleInvoke implements POST /invoke.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := s.registry.Invoke(r.Context(), req.SessionID, req.UserID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			s.writeError(w, http.StatusNotFound, err.Error())
		case strings.Contains(err.Error(), "cannot accept messages"):
			s.writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("invoke failed: %v", err)
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	sess := result.Session
	s.writeJSON(w, http.StatusOK, &InvokeResponse{
		SessionID:       sess.ID,
		Response:        result.Response,
		Status:          string(sess.Status),
		Phase:           sess.Phase,
		PhaseName:       phaseName(sess.Phase),
		Iterations:      sess.Iteration,
		TokensUsed:      sess.TokensUsed,
		PendingQuestion: sess.PendingQuestion,
		FailureReason:   sess.FailureReason,
	})
}

// handleSessions implements GET /sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions, err := s.store.ListSessions()
	if err != nil {
		s.logger.Error("listing sessions: %v", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []*proto.Session{}
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

// handleSession routes GET /sessions/{id} and GET /sessions/{id}/progress.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/sessions/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	switch sub {
	case "":
		s.serveSession(w, id)
	case "progress":
		s.serveProgress(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serveSession(w http.ResponseWriter, id string) {
	sess, err := s.store.GetSession(id)
	if errors.Is(err, sql.ErrNoRows) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.logger.Error("loading session %s: %v", id, err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

// serveProgress returns the resume summary by default, or full history
// with ?full=1.
func (s *Server) serveProgress(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.store.GetSession(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.writeError(w, http.StatusNotFound, "session not found")
		} else {
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if r.URL.Query().Get("full") == "1" {
		history, err := s.progress.History(id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, history)
		return
	}

	summary, err := s.progress.Summarize(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// handleLogs implements GET /logs: recent entries from the in-memory log
// buffer, optionally filtered by ?domain= and ?since= (RFC3339).
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	since := time.Now().Add(-time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid since timestamp: "+err.Error())
			return
		}
		since = parsed
	}

	entries := logx.GetRecentLogEntries(r.URL.Query().Get("domain"), since)
	if entries == nil {
		entries = []logx.LogEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// handleHealthz is the liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReadyz is the readiness probe. Ready means the store answers.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.DB().PingContext(ctx); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func phaseName(ordinal int) string {
	if ordinal >= phase.Count() {
		return "done"
	}
	return phase.Name(ordinal)
}
