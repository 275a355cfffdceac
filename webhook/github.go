// Package webhook ingests signed GitHub push notifications and turns
// them into pool invalidations: a push to a tracked repo's tracked
// branch means every clone any Warmer holds is stale.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/google/go-github/v68/github"
	"github.com/jxucoder/prewarm/registry"
)

// PoolInvalidator is the narrow slice of pool.Manager this package
// depends on.
type PoolInvalidator interface {
	InvalidateForRepo(ctx context.Context, repoFullName string) error
}

// Handler processes GitHub webhook deliveries over HTTP.
type Handler struct {
	Secret string // empty disables signature verification
	Pool   PoolInvalidator
	Reg    *registry.Registry
}

// NewHandler constructs a Handler. An empty secret skips signature
// verification entirely (matches the permissive behavior the original
// server shipped, with the same warning logged on every request).
func NewHandler(secret string, pool PoolInvalidator, reg *registry.Registry) *Handler {
	return &Handler{Secret: secret, Pool: pool, Reg: reg}
}

// ServeHTTP implements http.Handler for POST /api/webhooks/github.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deliveryID := github.DeliveryID(r)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Printf("webhook: reading body for delivery %s: %v", deliveryID, err)
		http.Error(w, "error reading body", http.StatusBadRequest)
		return
	}
	if h.Secret == "" {
		log.Printf("webhook: no secret configured - skipping signature validation")
	} else if err := github.ValidateSignature(r.Header.Get(github.SHA256SignatureHeader), payload, []byte(h.Secret)); err != nil {
		log.Printf("webhook: invalid signature for delivery %s: %v", deliveryID, err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := github.WebHookType(r)
	event, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		log.Printf("webhook: failed to parse %s payload (delivery %s): %v", eventType, deliveryID, err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	log.Printf("webhook: received event=%s delivery=%s", eventType, deliveryID)

	switch e := event.(type) {
	case *github.PingEvent:
		h.handlePing(w, e)
	case *github.PushEvent:
		h.handlePush(r.Context(), w, e)
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("event type %s ignored", eventType),
		})
	}
}

func (h *Handler) handlePing(w http.ResponseWriter, e *github.PingEvent) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "pong",
		"hook_id": e.GetHookID(),
	})
}

func (h *Handler) handlePush(ctx context.Context, w http.ResponseWriter, e *github.PushEvent) {
	repoFullName := e.GetRepo().GetFullName()
	if repoFullName == "" {
		log.Printf("webhook: push event missing repository full_name")
		writeJSON(w, http.StatusOK, map[string]string{"message": "push event ignored - missing repository info"})
		return
	}

	branch := strings.TrimPrefix(e.GetRef(), "refs/heads/")
	log.Printf("webhook: push repo=%s branch=%s pusher=%s commits=%d",
		repoFullName, branch, e.GetPusher().GetName(), len(e.Commits))

	repo, err := h.Reg.GetRepo(repoFullName)
	if err != nil {
		log.Printf("webhook: looking up %s: %v", repoFullName, err)
		http.Error(w, "error processing webhook", http.StatusInternalServerError)
		return
	}
	if repo == nil {
		log.Printf("webhook: push event for untracked repo %s", repoFullName)
		writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("repository %s not tracked", repoFullName),
		})
		return
	}
	if repo.Branch != branch {
		log.Printf("webhook: push to %s ignored, tracking %s", branch, repo.Branch)
		writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("push to branch %s ignored (tracking %s)", branch, repo.Branch),
		})
		return
	}

	if sha := e.GetHeadCommit().GetID(); sha != "" {
		updated := *repo
		updated.LastCommitSHA = &sha
		if _, err := h.Reg.UpdateRepo(updated); err != nil {
			log.Printf("webhook: recording last_commit_sha for %s: %v", repoFullName, err)
		}
	}

	if err := h.Pool.InvalidateForRepo(ctx, repoFullName); err != nil {
		log.Printf("webhook: invalidating pool for %s: %v", repoFullName, err)
		http.Error(w, "error processing webhook", http.StatusInternalServerError)
		return
	}

	log.Printf("webhook: invalidated conversation pool for %s", repoFullName)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("conversation pool invalidated for %s", repoFullName),
		"repo":    repoFullName,
		"branch":  branch,
		"commits": len(e.Commits),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("webhook: failed writing response: %v", err)
	}
}
