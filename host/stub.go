package host

import (
	"context"
	"sync"
)

// InMemoryHost is a reference ConversationFactory + ConversationHost used
// as the dev/test default. On CreateNewConversation it immediately
// registers a session whose runtime and controller flip from
// uninitialized/LOADING to ready after a short, configurable number of
// Advance calls — standing in for the real factory's asynchronous
// background provisioning.
type InMemoryHost struct {
	mu       sync.Mutex
	sessions map[string]*stubSession
	// StepsToReady is how many Advance calls a freshly created session
	// needs before its runtime is initialized and its controller leaves
	// LOADING. Defaults to 1 if unset via NewInMemoryHost.
	StepsToReady int
}

// NewInMemoryHost creates an InMemoryHost that reaches readiness after
// stepsToReady calls to Advance (minimum 1).
func NewInMemoryHost(stepsToReady int) *InMemoryHost {
	if stepsToReady < 1 {
		stepsToReady = 1
	}
	return &InMemoryHost{
		sessions:     make(map[string]*stubSession),
		StepsToReady: stepsToReady,
	}
}

type stubSession struct {
	mu          sync.Mutex
	steps       int
	stepsNeeded int
}

func (s *stubSession) Runtime() Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &stubRuntime{initialized: s.steps >= s.stepsNeeded}
}

func (s *stubSession) Controller() Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.steps < s.stepsNeeded {
		return &stubController{state: AgentStateLoading}
	}
	return &stubController{state: AgentStateIdle}
}

// Advance moves every registered session one step closer to ready. Tests
// drive a fake clock by calling this once per simulated poll tick.
func (h *InMemoryHost) Advance() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		s.mu.Lock()
		if s.steps < s.stepsNeeded {
			s.steps++
		}
		s.mu.Unlock()
	}
}

func (h *InMemoryHost) CreateNewConversation(ctx context.Context, req CreateConversationRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[req.ConversationID] = &stubSession{stepsNeeded: h.StepsToReady}
	return nil
}

func (h *InMemoryHost) AgentSession(conversationID string) (AgentSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[conversationID]
	return s, ok
}

type stubRuntime struct {
	initialized bool
}

func (r *stubRuntime) Initialized() bool      { return r.initialized }
func (r *stubRuntime) WorkspacePath() string  { return "/workspace" }
func (r *stubRuntime) Read(ctx context.Context, path string) (string, error) {
	return "", nil
}
func (r *stubRuntime) Run(ctx context.Context, command string, timeoutSec int, hidden bool) (int, string, error) {
	return 0, "", nil
}

type stubController struct {
	state AgentState
}

func (c *stubController) AgentState() AgentState { return c.state }
