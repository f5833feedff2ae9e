// Package api implements the HTTP API in front of the assistant.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"valet/internal/agent"
	"valet/internal/buildinfo"
	"valet/internal/history"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// TurnHandler runs one conversational turn. *agent.Orchestrator is the
// production implementation.
type TurnHandler interface {
	Handle(ctx context.Context, userID, question string) (agent.Result, error)
}

// HistoryStore serves the history management endpoints.
type HistoryStore interface {
	Load(ctx context.Context, userID string) []history.Message
	Delete(ctx context.Context, userID string) error
	Mode() string
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	token   string
	turns   TurnHandler
	store   HistoryStore
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new API server. token is the shared secret every
// request must present.
func NewServer(address string, port int, token string, turns TurnHandler, store HistoryStore, logger *slog.Logger) *Server {
	return &Server{
		address: address,
		port:    port,
		token:   token,
		turns:   turns,
		store:   store,
		logger:  logger,
	}
}

// Handler builds the route table. Exposed separately from Start so
// tests can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /query", s.withAuth(s.handleQuery))
	mux.HandleFunc("GET /chat_history", s.withAuth(s.handleHistory))
	mux.HandleFunc("DELETE /chat_history/clear", s.withAuth(s.handleHistoryClear))

	// Unauthenticated service endpoints.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // agent turns can be slow
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.New().String()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// withAuth rejects requests lacking the shared secret before the
// handler does any work. The token travels either in a "token" query
// parameter or an Authorization bearer header.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presented := r.URL.Query().Get("token")
		if presented == "" {
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				presented = strings.TrimPrefix(h, "Bearer ")
			}
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.token)) != 1 {
			s.errorResponse(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next(w, r)
	}
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
}

// QueryResponse is the envelope returned for every turn, successful or
// not. Error carries diagnostic detail; Output is always presentable.
type QueryResponse struct {
	UserID            string `json:"user_id"`
	Question          string `json:"question"`
	Output            string `json:"output"`
	ChatHistoryLength int    `json:"chat_history_length"`
	Error             string `json:"error,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.turns.Handle(r.Context(), req.UserID, req.Question)
	if err != nil {
		// Validation failures; nothing was executed or stored.
		if errors.Is(err, agent.ErrEmptyUserID) || errors.Is(err, agent.ErrEmptyQuestion) {
			s.errorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("turn handler failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := QueryResponse{
		UserID:            res.UserID,
		Question:          res.Question,
		Output:            res.Answer,
		ChatHistoryLength: res.HistoryLength,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.errorResponse(w, http.StatusBadRequest, "user_id is required")
		return
	}

	msgs := s.store.Load(r.Context(), userID)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"user_id": userID,
		"history": msgs,
		"count":   len(msgs),
	}, s.logger)
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.errorResponse(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := s.store.Delete(r.Context(), userID); err != nil {
		// The in-memory copy is gone either way; durable cleanup can lag.
		s.logger.Warn("durable history delete failed", "user_id", userID, "error", err)
	}
	s.logger.Info("chat history cleared via API", "user_id", userID)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"message": fmt.Sprintf("🗑️ Chat history cleared for user=%s", userID),
	}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"name":    "valet",
		"version": buildinfo.Version,
		"status":  "ok",
		"endpoints": map[string]string{
			"POST /query":                "run one assistant turn",
			"GET /chat_history":          "fetch a user's conversation",
			"DELETE /chat_history/clear": "clear a user's conversation",
			"GET /health":                "liveness probe",
		},
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status":  "healthy",
		"storage": s.store.Mode(),
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
