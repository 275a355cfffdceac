package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jxucoder/prewarm/model"
	"github.com/jxucoder/prewarm/registry"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Read(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (m *memStore) Write(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[path] = data
	return nil
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeInvalidator) InvalidateForRepo(ctx context.Context, repoFullName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, repoFullName)
	return nil
}

func (f *fakeInvalidator) called(repo string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == repo {
			return true
		}
	}
	return false
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newTestHandler(t *testing.T, secret string) (*Handler, *fakeInvalidator, *registry.Registry) {
	t.Helper()
	reg := registry.New(newMemStore(), "")
	inv := &fakeInvalidator{}
	return NewHandler(secret, inv, reg), inv, reg
}

func TestHandlerRejectsBadSignature(t *testing.T) {
	h, _, _ := newTestHandler(t, "topsecret")
	body := `{"ref":"refs/heads/main","repository":{"full_name":"acme/widget"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandlerInvalidatesTrackedBranch(t *testing.T) {
	h, inv, reg := newTestHandler(t, "topsecret")
	if err := reg.AddRepo(model.SavedRepo{
		RepoFullName: "acme/widget",
		Branch:       "main",
		GitProvider:  model.ProviderGitHub,
		AddedAt:      time.Now(),
		PoolSize:     1,
	}); err != nil {
		t.Fatalf("seeding registry: %v", err)
	}

	body := []byte(`{"ref":"refs/heads/main","repository":{"full_name":"acme/widget"},"head_commit":{"id":"abc123"},"pusher":{"name":"alice"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(string(body)))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", sign("topsecret", body))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !inv.called("acme/widget") {
		t.Fatalf("expected InvalidateForRepo to be called for acme/widget")
	}
	repo, err := reg.GetRepo("acme/widget")
	if err != nil || repo == nil {
		t.Fatalf("get after push: %v", err)
	}
	if repo.LastCommitSHA == nil || *repo.LastCommitSHA != "abc123" {
		t.Fatalf("expected last_commit_sha recorded, got %+v", repo.LastCommitSHA)
	}
}

func TestHandlerIgnoresWrongBranch(t *testing.T) {
	h, inv, reg := newTestHandler(t, "topsecret")
	if err := reg.AddRepo(model.SavedRepo{
		RepoFullName: "acme/widget",
		Branch:       "main",
		GitProvider:  model.ProviderGitHub,
		AddedAt:      time.Now(),
		PoolSize:     1,
	}); err != nil {
		t.Fatalf("seeding registry: %v", err)
	}

	body := []byte(`{"ref":"refs/heads/feature-x","repository":{"full_name":"acme/widget"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(string(body)))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", sign("topsecret", body))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if inv.called("acme/widget") {
		t.Fatalf("expected no invalidation for a push to an untracked branch")
	}
}

func TestHandlerIgnoresUntrackedRepo(t *testing.T) {
	h, inv, _ := newTestHandler(t, "topsecret")
	body := []byte(`{"ref":"refs/heads/main","repository":{"full_name":"someone/else"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(string(body)))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", sign("topsecret", body))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if inv.called("someone/else") {
		t.Fatalf("expected no invalidation for an untracked repo")
	}
}

func TestHandlerPing(t *testing.T) {
	h, _, _ := newTestHandler(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", strings.NewReader(`{"hook_id":42,"zen":"hi"}`))
	req.Header.Set("X-GitHub-Event", "ping")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
