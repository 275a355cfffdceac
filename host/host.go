// Package host defines the narrow capability interfaces the pool
// manager and warmer consume from the surrounding agent-hosting product:
// the sandboxed Runtime, the Conversation Factory that instantiates an
// agent session, and the ConversationHost that lets the Warmer observe a
// session's lifecycle. None of these are implemented by this module in
// production — they're injected at construction, exactly as spec.md §9
// resolves the cyclic-import problem between the Pool Manager and the
// Conversation Factory.
package host

import "context"

// AgentState mirrors the subset of agent lifecycle states the Warmer
// needs to observe. LOADING is the only state the Warmer treats
// specially: every other value (including ones this module has never
// heard of) counts as "done loading".
type AgentState string

const (
	AgentStateLoading AgentState = "loading"
	AgentStateIdle    AgentState = "idle"
	AgentStateRunning AgentState = "running"
	AgentStateError   AgentState = "error"
)

// Runtime is the sandboxed execution environment for one conversation.
type Runtime interface {
	// Initialized reports whether the runtime has finished provisioning
	// (container created, repo cloned) and can accept commands.
	Initialized() bool
	// WorkspacePath is the absolute path inside the sandbox where the
	// repo is (or will be) cloned.
	WorkspacePath() string
	// Read returns the content at path inside the sandbox. A content
	// string starting with "ERROR" signals a read failure, matching the
	// sentinel the underlying runtime uses instead of a Go error for
	// missing files (the file may simply not exist yet).
	Read(ctx context.Context, path string) (string, error)
	// Run executes a shell command inside the sandbox, blocking for at
	// most timeoutSec seconds. hidden suppresses the command from any
	// user-facing event stream.
	Run(ctx context.Context, command string, timeoutSec int, hidden bool) (exitCode int, output string, err error)
}

// Controller reports the owning agent's current lifecycle state.
type Controller interface {
	AgentState() AgentState
}

// AgentSession is the live session object a ConversationHost hands back
// once a conversation exists. Runtime and Controller are both nil until
// the corresponding initialization phase has progressed far enough.
type AgentSession interface {
	Runtime() Runtime
	Controller() Controller
}

// ConversationHost lets the Warmer observe a conversation's progress
// without depending on the Conversation Factory that created it,
// breaking the cyclic import spec.md §9 describes.
type ConversationHost interface {
	// AgentSession returns the live session for conversationID, or
	// ok=false if no session has been registered for that id yet.
	AgentSession(conversationID string) (sess AgentSession, ok bool)
}

// ConversationFactory instantiates an agent session. It returns as soon
// as initialization has been scheduled — it does not wait for the
// runtime to come up, which is exactly why the Warmer exists.
type ConversationFactory interface {
	CreateNewConversation(ctx context.Context, req CreateConversationRequest) error
}

// CreateConversationRequest carries everything the factory needs to
// schedule a new conversation.
type CreateConversationRequest struct {
	ConversationID string
	RepoFullName   string
	Branch         string
	UserID         string            // empty for metadata-only warming
	ProviderTokens map[string]string // nil for metadata-only warming
	InitialUserMsg *string           // always nil for pre-warmed conversations
}

// SettingsErrorMarkers is the closed set of substrings that identify a
// settings/LLM/API-key class of factory error, per spec.md §4.2's
// documented (and flagged-fragile, see DESIGN.md) detection strategy.
var SettingsErrorMarkers = []string{"Settings not found", "LLM", "API key"}
