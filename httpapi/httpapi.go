// Package httpapi exposes the Pool Manager and webhook handler over
// HTTP. It delegates all business logic to pool.Manager and
// webhook.Handler.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jxucoder/prewarm/pool"
	"github.com/jxucoder/prewarm/webhook"
)

// Handler provides the HTTP API for the warm pool.
type Handler struct {
	manager *pool.Manager
	webhook *webhook.Handler
	router  chi.Router
}

// New creates a new HTTP API handler.
func New(manager *pool.Manager, wh *webhook.Handler) *Handler {
	h := &Handler{manager: manager, webhook: wh}
	h.router = h.buildRouter()
	return h
}

// Router returns the HTTP router.
func (h *Handler) Router() chi.Router {
	return h.router
}

func (h *Handler) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Handle("/webhooks/github", h.webhook)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/pool/{owner}/{name}/status", h.handleGetPoolStatus)
			r.Post("/pool/{owner}/{name}/prewarm", h.handlePrewarm)
			r.Post("/pool/{owner}/{name}/claim", h.handleClaim)
			r.Post("/pool/{owner}/{name}/credentials", h.handleSetCredentials)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	return r
}

// --- Request/Response types ---

type prewarmRequest struct {
	Branch   string `json:"branch"`
	PoolSize int    `json:"pool_size"`
}

type claimResponse struct {
	ConversationID string `json:"conversation_id"`
}

type credentialsRequest struct {
	UserID         string            `json:"user_id"`
	ProviderTokens map[string]string `json:"provider_tokens"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (h *Handler) handleGetPoolStatus(w http.ResponseWriter, r *http.Request) {
	repo, err := repoParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := h.manager.GetPoolStatus(repo)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load pool status")
		log.Printf("httpapi: pool status for %s: %v", repo, err)
		return
	}
	if status == nil {
		writeError(w, http.StatusNotFound, "repo not tracked")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handlePrewarm(w http.ResponseWriter, r *http.Request) {
	repo, err := repoParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req prewarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Branch = strings.TrimSpace(req.Branch)
	if req.Branch == "" {
		req.Branch = "main"
	}
	if req.PoolSize <= 0 {
		req.PoolSize = 1
	}

	if err := h.manager.PrewarmForRepo(r.Context(), repo, req.Branch, req.PoolSize); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to prewarm repo")
		log.Printf("httpapi: prewarm %s: %v", repo, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"repo": repo, "branch": req.Branch})
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	repo, err := repoParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conversationID, ok, err := h.manager.ClaimConversation(r.Context(), repo)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to claim conversation")
		log.Printf("httpapi: claim %s: %v", repo, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no ready conversation available")
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{ConversationID: conversationID})
}

func (h *Handler) handleSetCredentials(w http.ResponseWriter, r *http.Request) {
	repo, err := repoParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	h.manager.SetCredentialsForRepo(repo, req.UserID, req.ProviderTokens)
	w.WriteHeader(http.StatusNoContent)
}

var errInvalidRepo = errors.New("owner and repo name are required")

// repoParam reassembles "owner/name" from chi's two path segments —
// GitHub full names contain a slash, which a single chi param can't
// capture.
func repoParam(r *http.Request) (string, error) {
	owner := strings.TrimSpace(chi.URLParam(r, "owner"))
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if owner == "" || name == "" {
		return "", errInvalidRepo
	}
	return owner + "/" + name, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("httpapi: failed writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
