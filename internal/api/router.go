// Package api implements the HTTP surface from spec.md §6.1, adapted
// from the teacher's internal/api/router.go: the same ServeMux-plus-
// middleware shape (bearer auth, request logging), generalized from
// org/user routes to the agent-chat and repository-ingestion routes
// this service actually exposes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pixell07/codeagent-rag/internal/agent"
	"github.com/pixell07/codeagent-rag/internal/apperr"
	"github.com/pixell07/codeagent-rag/internal/auth"
	"github.com/pixell07/codeagent-rag/internal/ingestion"
	"github.com/pixell07/codeagent-rag/internal/model"
)

type contextKey string

const claimsKey contextKey = "claims"

// ConversationStore is the subset of store.ConversationStore the router
// needs directly (the orchestrator owns writes during a chat turn; the
// router only serves reads/deletes).
type ConversationStore interface {
	Get(ctx context.Context, id string) (*model.ConversationContext, error)
	Delete(ctx context.Context, id string) error
}

// RepositoryStore is the subset of store.PostgresStore the router needs
// directly for the ingestion listing/read/delete routes.
type RepositoryStore interface {
	ListRepositories(ctx context.Context) ([]*model.Repository, error)
	GetRepository(ctx context.Context, id string) (*model.Repository, error)
	DeleteRepository(ctx context.Context, id string) error
}

// RouterDeps wires every component the HTTP surface needs.
type RouterDeps struct {
	Orchestrator  *agent.Orchestrator
	Ingestion     *ingestion.Service
	Conversations ConversationStore
	Repositories  RepositoryStore
	JWTManager    *auth.JWTManager
	AuthService   *auth.Service
	Logger        *slog.Logger
}

// NewRouter builds the full HTTP surface.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()
	h := &handlers{deps: deps}

	mux.HandleFunc("GET  /api/health", h.health)
	mux.HandleFunc("POST /api/auth/register", h.registerClient)
	mux.HandleFunc("POST /api/auth/token", h.issueToken)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /api/agent/chat", h.chat)
	protected.HandleFunc("POST /api/agent/chat/stream", h.chatStream)
	protected.HandleFunc("GET  /api/agent/conversations/{id}", h.getConversation)
	protected.HandleFunc("DELETE /api/agent/conversations/{id}", h.deleteConversation)
	protected.HandleFunc("GET  /api/ingestion/repositories", h.listRepositories)
	protected.HandleFunc("POST /api/ingestion/repositories", h.createRepository)
	protected.HandleFunc("GET  /api/ingestion/repositories/{id}", h.getRepository)
	protected.HandleFunc("DELETE /api/ingestion/repositories/{id}", h.deleteRepository)
	protected.HandleFunc("GET  /api/ingestion/repositories/{id}/stats", h.repositoryStats)

	mux.Handle("/api/agent/", h.authMiddleware(protected))
	mux.Handle("/api/ingestion/", h.authMiddleware(protected))

	return h.loggingMiddleware(mux)
}

type handlers struct {
	deps RouterDeps
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().Format(time.RFC3339)})
}

func (h *handlers) registerClient(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	client, err := h.deps.AuthService.Register(r.Context(), req)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, client)
}

func (h *handlers) issueToken(w http.ResponseWriter, r *http.Request) {
	var req auth.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := h.deps.AuthService.Token(r.Context(), req)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

type chatRequest struct {
	Message        string `json:"message"`
	RepositoryID   string `json:"repositoryId"`
	ConversationID string `json:"conversationId"`
}

func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" || req.RepositoryID == "" {
		writeError(w, http.StatusBadRequest, "message and repositoryId are required")
		return
	}

	resp, err := h.deps.Orchestrator.Run(r.Context(), req.RepositoryID, req.ConversationID, req.Message)
	if err != nil && resp == nil {
		writeAppErr(w, err)
		return
	}
	if claims := claimsFromCtx(r.Context()); claims != nil {
		h.deps.Logger.Info("chat turn completed", "clientId", claims.ClientID, "repositoryId", req.RepositoryID, "isComplete", resp.IsComplete)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) chatStream(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" || req.RepositoryID == "" {
		writeError(w, http.StatusBadRequest, "message and repositoryId are required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events := make(chan agent.StreamEvent, 64)
	go func() {
		if err := h.deps.Orchestrator.RunStreaming(r.Context(), req.RepositoryID, req.ConversationID, req.Message, events); err != nil {
			if r.Context().Err() == nil {
				h.deps.Logger.Error("agent stream error", "error", err)
			}
		}
	}()

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
}

func (h *handlers) getConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv, err := h.deps.Conversations.Get(r.Context(), id)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *handlers) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.deps.Conversations.Delete(r.Context(), id); err != nil {
		writeAppErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.deps.Repositories.ListRepositories(r.Context())
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

type createRepositoryRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

func (h *handlers) createRepository(w http.ResponseWriter, r *http.Request) {
	var req createRepositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if req.Name == "" {
		req.Name = req.Path
	}

	repo, err := h.deps.Ingestion.IndexAsync(r.Context(), ingestion.IndexRequest{
		ID: req.ID, Name: req.Name, Path: req.Path, Description: req.Description,
	})
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (h *handlers) getRepository(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	repo, err := h.deps.Repositories.GetRepository(r.Context(), id)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	if repo == nil {
		writeError(w, http.StatusNotFound, "repository not found")
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (h *handlers) deleteRepository(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.deps.Repositories.DeleteRepository(r.Context(), id); err != nil {
		writeAppErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) repositoryStats(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	repo, err := h.deps.Ingestion.Stats(r.Context(), id)
	if err != nil {
		writeAppErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"repositoryId": repo.ID,
		"chunkCount":   repo.ChunkCount,
		"languages":    repo.Languages,
		"indexedAt":    repo.IndexedAt,
	})
}

// Middleware

func (h *handlers) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.deps.JWTManager.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := h.deps.JWTManager.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handlers) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.deps.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeAppErr(w http.ResponseWriter, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.KindValidation:
			writeError(w, http.StatusBadRequest, ae.Error())
			return
		case apperr.KindNotFound:
			writeError(w, http.StatusNotFound, ae.Error())
			return
		case apperr.KindIterationExhausted:
			writeError(w, http.StatusUnprocessableEntity, ae.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func claimsFromCtx(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	return c
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}
