package pool

import (
	"context"
	"strings"
	"time"

	"github.com/jxucoder/prewarm/autostart"
	"github.com/jxucoder/prewarm/host"
	"github.com/jxucoder/prewarm/model"
)

// statusUpdater is the callback surface a Warmer uses to report its
// progress back to the owning Manager. It's a narrow slice of Manager's
// API so the Warmer doesn't need the whole thing.
type statusUpdater interface {
	updateStatus(repoFullName, conversationID string, status model.Status, step model.WarmingStep, errMsg *string)
	deregister(conversationID string)
}

// warmer drives a single conversation from "queued" to "ready" or
// "error". One warmer owns exactly one conversation id for its lifetime.
type warmer struct {
	repoFullName   string
	conversationID string
	branch         string
	credentials    *CredentialBinding // nil => metadata-only warming

	factory  host.ConversationFactory
	convHost host.ConversationHost
	manager  statusUpdater

	pollInterval time.Duration
	deadline     time.Duration
}

// run executes the full state table in spec.md §4.2. It returns once the
// conversation is terminal (ready/error) or the context is cancelled. On
// cancellation it returns immediately without writing a final status —
// the cancelling party (invalidate/shutdown) already owns cleanup of the
// registry entry.
func (w *warmer) run(ctx context.Context) {
	defer w.manager.deregister(w.conversationID)

	w.setStatus(ctx, model.StatusWarming, model.StepInitializing, nil)
	if ctx.Err() != nil {
		return
	}

	if w.credentials == nil {
		w.warmMetadataOnly(ctx)
		return
	}

	w.setStatus(ctx, model.StatusWarming, model.StepCloningRepo, nil)
	if ctx.Err() != nil {
		return
	}

	req := host.CreateConversationRequest{
		ConversationID: w.conversationID,
		RepoFullName:   w.repoFullName,
		Branch:         w.branch,
		UserID:         w.credentials.UserID,
		ProviderTokens: w.credentials.ProviderTokens,
	}
	if err := w.factory.CreateNewConversation(ctx, req); err != nil {
		if ctx.Err() != nil {
			return
		}
		if isSettingsError(err) {
			w.warmMetadataOnly(ctx)
			return
		}
		msg := err.Error()
		w.setStatus(ctx, model.StatusError, model.StepError, &msg)
		return
	}

	w.pollUntilReady(ctx)
}

// warmMetadataOnly is the degraded path taken when credentials are
// absent, or when the factory reported a settings/LLM/API-key error.
// It allocates a conversation id and marks it ready without ever
// entering cloning_repo; the real cost is paid later, at claim time.
func (w *warmer) warmMetadataOnly(ctx context.Context) {
	w.setStatus(ctx, model.StatusWarming, model.StepCreatingMetadata, nil)
	if ctx.Err() != nil {
		return
	}
	w.setStatus(ctx, model.StatusReady, model.StepReady, nil)
}

// pollUntilReady polls the conversation host, at w.pollInterval, for the
// three nested readiness gates described in spec.md §4.2, advancing
// warming_step as each gate passes.
func (w *warmer) pollUntilReady(ctx context.Context) {
	deadline := time.NewTimer(w.deadline)
	defer deadline.Stop()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	start := time.Now()
	lastStep := model.StepCloningRepo
	autostartRan := false

	for {
		sess, ok := w.convHost.AgentSession(w.conversationID)
		if ok && sess != nil {
			if rt := sess.Runtime(); rt != nil {
				if lastStep == model.StepCloningRepo {
					lastStep = model.StepBuildingRuntime
					w.setStatus(ctx, model.StatusWarming, lastStep, nil)
				}
				if rt.Initialized() {
					if !autostartRan {
						autostartRan = true
						autostart.NewExecutor(rt, w.conversationID, w.repoFullName).Run(ctx)
					}
					if ctrl := sess.Controller(); ctrl != nil {
						if lastStep == model.StepBuildingRuntime {
							lastStep = model.StepStartingAgent
							w.setStatus(ctx, model.StatusWarming, lastStep, nil)
						}
						if ctrl.AgentState() != host.AgentStateLoading {
							w.setStatus(ctx, model.StatusReady, model.StepReady, nil)
							return
						}
					}
				}
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			err := &TimeoutError{Elapsed: time.Since(start)}
			msg := err.Error()
			w.setStatus(ctx, model.StatusError, model.StepError, &msg)
			return
		case <-ticker.C:
			continue
		}
	}
}

func (w *warmer) setStatus(ctx context.Context, status model.Status, step model.WarmingStep, errMsg *string) {
	if ctx.Err() != nil {
		return
	}
	w.manager.updateStatus(w.repoFullName, w.conversationID, status, step, errMsg)
}

// isSettingsError identifies a settings/LLM/API-key class of factory
// error via closed substring match. Fragile by design — see DESIGN.md's
// open-question note; a typed error from the factory contract would be
// the principled fix, but the factory is an external collaborator this
// module does not own.
func isSettingsError(err error) bool {
	msg := err.Error()
	for _, marker := range host.SettingsErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

