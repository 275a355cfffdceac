// Package model defines the core domain types shared across the pool
// manager, warmer, registry, and webhook packages. It has zero
// dependencies on other prewarm packages.
package model

import "time"

// ProviderType is a tagged variant over the supported git hosting
// providers. Only GitHub is supported today.
type ProviderType string

const (
	ProviderGitHub ProviderType = "github"
)

// Status is the top-level state of a PrewarmedConversation.
type Status string

const (
	StatusWarming Status = "warming"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// WarmingStep is the advisory sub-state surfaced for UI progress while a
// conversation is warming. It advances monotonically for a given
// conversation; it never drives behavior on its own.
type WarmingStep string

const (
	StepQueued           WarmingStep = "queued"
	StepInitializing     WarmingStep = "initializing"
	StepCreatingMetadata WarmingStep = "creating_metadata"
	StepCloningRepo      WarmingStep = "cloning_repo"
	StepBuildingRuntime  WarmingStep = "building_runtime"
	StepStartingAgent    WarmingStep = "starting_agent"
	StepReady            WarmingStep = "ready"
	StepError            WarmingStep = "error"
)

// PrewarmedConversation is a single pool slot.
type PrewarmedConversation struct {
	ConversationID string      `json:"conversation_id"`
	Status         Status      `json:"status"`
	WarmingStep    WarmingStep `json:"warming_step"`
	CreatedAt      time.Time   `json:"created_at"`
	ErrorMessage   *string     `json:"error_message"`
}

// SavedRepo is the unit of pool ownership.
type SavedRepo struct {
	RepoFullName           string                  `json:"repo_full_name"`
	Branch                 string                  `json:"branch"`
	GitProvider            ProviderType            `json:"git_provider"`
	AddedAt                time.Time               `json:"added_at"`
	LastCommitSHA          *string                 `json:"last_commit_sha"`
	PoolSize               int                     `json:"pool_size"`
	PrewarmedConversations []PrewarmedConversation `json:"prewarmed_conversations"`
}

// MinPoolSize and MaxPoolSize bound SavedRepo.PoolSize per the invariant
// in spec.md §3.
const (
	MinPoolSize = 1
	MaxPoolSize = 10
)

// ClampPoolSize clamps n into [MinPoolSize, MaxPoolSize].
func ClampPoolSize(n int) int {
	if n < MinPoolSize {
		return MinPoolSize
	}
	if n > MaxPoolSize {
		return MaxPoolSize
	}
	return n
}

// ReadyConversations returns all conversations with status=ready, in
// insertion order.
func (r *SavedRepo) ReadyConversations() []PrewarmedConversation {
	var out []PrewarmedConversation
	for _, c := range r.PrewarmedConversations {
		if c.Status == StatusReady {
			out = append(out, c)
		}
	}
	return out
}

// WarmingCount returns the number of conversations currently warming.
func (r *SavedRepo) WarmingCount() int {
	n := 0
	for _, c := range r.PrewarmedConversations {
		if c.Status == StatusWarming {
			n++
		}
	}
	return n
}

// ActiveCount returns the number of conversations counted toward
// pool_size: ready + warming (error entries don't count and aren't
// refilled automatically).
func (r *SavedRepo) ActiveCount() int {
	n := 0
	for _, c := range r.PrewarmedConversations {
		if c.Status == StatusReady || c.Status == StatusWarming {
			n++
		}
	}
	return n
}

// NeedsMoreConversations reports whether the pool is under its target
// size.
func (r *SavedRepo) NeedsMoreConversations() bool {
	return r.ActiveCount() < r.PoolSize
}

// RemoveConversation removes the conversation with the given id from
// r.PrewarmedConversations and reports whether anything was removed.
func (r *SavedRepo) RemoveConversation(conversationID string) bool {
	out := r.PrewarmedConversations[:0:0]
	removed := false
	for _, c := range r.PrewarmedConversations {
		if c.ConversationID == conversationID {
			removed = true
			continue
		}
		out = append(out, c)
	}
	r.PrewarmedConversations = out
	return removed
}
