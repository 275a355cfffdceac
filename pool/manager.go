package pool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jxucoder/prewarm/host"
	"github.com/jxucoder/prewarm/model"
	"github.com/jxucoder/prewarm/registry"
)

// StatusListener receives a best-effort notification on every warming
// step transition. It's the hook the audit trail attaches to; nil is a
// valid Manager configuration (no auditing).
type StatusListener interface {
	RecordStep(repoFullName, conversationID string, status model.Status, step model.WarmingStep, errMsg *string)
}

// ManagerConfig collects the Manager's tunables. Zero values are
// replaced with package defaults by NewManager.
type ManagerConfig struct {
	PollInterval time.Duration
	Deadline     time.Duration
}

// Manager is the Pool Manager described in spec.md §4.4: it owns the
// saved-repo registry and the set of in-flight Warmers, and is the only
// writer of pool state. All registry reads/writes and task-index
// mutations happen under mu.
type Manager struct {
	mu sync.Mutex

	reg         *registry.Registry
	factory     host.ConversationFactory
	convHost    host.ConversationHost
	listener    StatusListener
	credentials map[string]CredentialBinding  // repoFullName -> binding
	tasks       map[string]context.CancelFunc // conversationID -> cancel

	pollInterval time.Duration
	deadline     time.Duration

	rootCtx    context.Context
	rootCancel context.CancelFunc
	closed     bool
}

// NewManager constructs a Manager. factory and convHost are the glue
// interfaces satisfied by the surrounding product (see host package);
// listener may be nil.
func NewManager(reg *registry.Registry, factory host.ConversationFactory, convHost host.ConversationHost, listener StatusListener, cfg ManagerConfig) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &Manager{
		reg:          reg,
		factory:      factory,
		convHost:     convHost,
		listener:     listener,
		credentials:  make(map[string]CredentialBinding),
		tasks:        make(map[string]context.CancelFunc),
		pollInterval: cfg.PollInterval,
		deadline:     cfg.Deadline,
		rootCtx:      rootCtx,
		rootCancel:   rootCancel,
	}
}

// Initialize loads every saved repo from the registry and tops up each
// one's pool to its configured size. It's meant to run once at process
// startup. The registry is the durable record; warmers themselves are
// not resumable. Entries a previous process left in warming status still
// count toward pool_size, and no Warmer is started for them.
func (m *Manager) Initialize(ctx context.Context) error {
	repos, err := m.reg.LoadAll()
	if err != nil {
		return fmt.Errorf("loading saved repos: %w", err)
	}
	for _, repo := range repos {
		if err := m.ensurePoolFilled(ctx, repo.RepoFullName); err != nil {
			log.Printf("pool: initialize: %s: %v", repo.RepoFullName, err)
		}
	}
	return nil
}

// SetCredentialsForRepo captures the credential binding a future prewarm
// for repoFullName will use. The binding lives only in memory.
func (m *Manager) SetCredentialsForRepo(repoFullName, userID string, providerTokens map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[repoFullName] = CredentialBinding{UserID: userID, ProviderTokens: providerTokens}
}

// PrewarmForRepo saves (or upserts) repoFullName in the registry and
// tops its pool up to poolSize, starting Warmers for any deficit.
func (m *Manager) PrewarmForRepo(ctx context.Context, repoFullName, branch string, poolSize int) error {
	repo := model.SavedRepo{
		RepoFullName: repoFullName,
		Branch:       branch,
		GitProvider:  model.ProviderGitHub,
		AddedAt:      time.Now().UTC(),
		PoolSize:     model.ClampPoolSize(poolSize),
	}
	if err := m.reg.AddRepo(repo); err != nil {
		return fmt.Errorf("saving repo %s: %w", repoFullName, err)
	}
	return m.ensurePoolFilled(ctx, repoFullName)
}

// ensurePoolFilled tops repoFullName's pool up to its configured size.
// It re-reads the registry on every iteration rather than computing the
// deficit once, because each spawned Warmer needs its own registry
// entry appended before the next loop iteration can see an accurate
// active count — the loop body IS the side effect it's measuring.
func (m *Manager) ensurePoolFilled(ctx context.Context, repoFullName string) error {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil
		}
		repo, err := m.reg.GetRepo(repoFullName)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		if repo == nil {
			m.mu.Unlock()
			return fmt.Errorf("repo %s is not tracked", repoFullName)
		}
		if !repo.NeedsMoreConversations() {
			m.mu.Unlock()
			return nil
		}

		conversationID := uuid.NewString()
		repo.PrewarmedConversations = append(repo.PrewarmedConversations, model.PrewarmedConversation{
			ConversationID: conversationID,
			Status:         model.StatusWarming,
			WarmingStep:    model.StepQueued,
			CreatedAt:      time.Now().UTC(),
		})
		if _, err := m.reg.UpdateRepo(*repo); err != nil {
			m.mu.Unlock()
			return err
		}

		binding, hasCreds := m.credentials[repoFullName]
		taskCtx, cancel := context.WithCancel(m.rootCtx)
		m.tasks[conversationID] = cancel
		m.mu.Unlock()

		w := &warmer{
			repoFullName:   repoFullName,
			conversationID: conversationID,
			branch:         repo.Branch,
			factory:        m.factory,
			convHost:       m.convHost,
			manager:        m,
			pollInterval:   m.pollInterval,
			deadline:       m.deadline,
		}
		if hasCreds {
			bindingCopy := binding
			w.credentials = &bindingCopy
		}
		go w.run(taskCtx)
	}
}

// ClaimConversation removes and returns the oldest ready conversation
// for repoFullName, persists the removal, and — after releasing the
// lock — schedules a refill so the caller never waits on it.
func (m *Manager) ClaimConversation(ctx context.Context, repoFullName string) (string, bool, error) {
	m.mu.Lock()
	repo, err := m.reg.GetRepo(repoFullName)
	if err != nil {
		m.mu.Unlock()
		return "", false, err
	}
	if repo == nil {
		m.mu.Unlock()
		return "", false, nil
	}
	ready := repo.ReadyConversations()
	if len(ready) == 0 {
		m.mu.Unlock()
		return "", false, nil
	}
	claimed := ready[0].ConversationID
	repo.RemoveConversation(claimed)
	if _, err := m.reg.UpdateRepo(*repo); err != nil {
		m.mu.Unlock()
		return "", false, err
	}
	m.mu.Unlock()

	go func() {
		if err := m.ensurePoolFilled(m.rootCtx, repoFullName); err != nil {
			log.Printf("pool: claim: refill for %s failed: %v", repoFullName, err)
		}
	}()
	return claimed, true, nil
}

// InvalidateForRepo cancels every in-flight Warmer for repoFullName,
// drops all of its pool entries (ready or warming alike — a push means
// the clone any of them did is now stale), then re-primes the pool from
// scratch.
func (m *Manager) InvalidateForRepo(ctx context.Context, repoFullName string) error {
	m.mu.Lock()
	repo, err := m.reg.GetRepo(repoFullName)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if repo == nil {
		m.mu.Unlock()
		return nil
	}
	for _, conv := range repo.PrewarmedConversations {
		if cancel, ok := m.tasks[conv.ConversationID]; ok {
			cancel()
			delete(m.tasks, conv.ConversationID)
		}
	}
	repo.PrewarmedConversations = nil
	if _, err := m.reg.UpdateRepo(*repo); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	return m.ensurePoolFilled(ctx, repoFullName)
}

// GetPoolStatus returns a snapshot of repoFullName's saved repo, or nil
// if it isn't tracked.
func (m *Manager) GetPoolStatus(repoFullName string) (*model.SavedRepo, error) {
	return m.reg.GetRepo(repoFullName)
}

// Shutdown cancels every in-flight Warmer and clears captured
// credentials. It's idempotent.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.rootCancel()
	m.tasks = make(map[string]context.CancelFunc)
	m.credentials = make(map[string]CredentialBinding)
}

// updateStatus implements statusUpdater. It's called from a Warmer's
// goroutine, so it takes the same lock as every other registry mutation.
func (m *Manager) updateStatus(repoFullName, conversationID string, status model.Status, step model.WarmingStep, errMsg *string) {
	m.mu.Lock()
	repo, err := m.reg.GetRepo(repoFullName)
	if err != nil || repo == nil {
		m.mu.Unlock()
		return
	}
	found := false
	for i := range repo.PrewarmedConversations {
		if repo.PrewarmedConversations[i].ConversationID == conversationID {
			repo.PrewarmedConversations[i].Status = status
			repo.PrewarmedConversations[i].WarmingStep = step
			repo.PrewarmedConversations[i].ErrorMessage = errMsg
			found = true
			break
		}
	}
	if !found {
		m.mu.Unlock()
		return
	}
	if _, err := m.reg.UpdateRepo(*repo); err != nil {
		log.Printf("pool: updateStatus: persisting %s/%s: %v", repoFullName, conversationID, err)
	}
	m.mu.Unlock()

	if m.listener != nil {
		m.listener.RecordStep(repoFullName, conversationID, status, step, errMsg)
	}
}

// deregister implements statusUpdater. It drops a finished Warmer's
// cancel func from the task index; it does not touch the registry entry
// itself, which updateStatus has already left in its terminal state.
func (m *Manager) deregister(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, conversationID)
}
