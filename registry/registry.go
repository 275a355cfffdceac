// Package registry provides durable, single-writer storage of SavedRepo
// records, persisted as a single JSON document through a pluggable
// FileStore. Writes are expected to serialize through the Pool Manager's
// lock; the Registry itself holds no lock.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jxucoder/prewarm/model"
)

// DefaultPath is the default document name within the FileStore.
const DefaultPath = "saved_repos.json"

type document struct {
	Repositories []json.RawMessage `json:"repositories"`
}

// Registry is a JSON-file-backed store of SavedRepo records.
type Registry struct {
	store FileStore
	path  string
}

// New creates a Registry backed by store, persisting to path (use
// DefaultPath unless the caller needs a different document name).
func New(store FileStore, path string) *Registry {
	if path == "" {
		path = DefaultPath
	}
	return &Registry{store: store, path: path}
}

// LoadAll reads every saved repo from the document. A missing file is
// treated as an empty registry, never an error. Individual entries that
// fail to parse are logged and skipped rather than aborting the whole
// load.
func (r *Registry) LoadAll() ([]model.SavedRepo, error) {
	raw, err := r.store.Read(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		log.Printf("registry: failed to read %s: %v", r.path, err)
		return nil, nil
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Printf("registry: failed to parse %s: %v", r.path, err)
		return nil, nil
	}

	repos := make([]model.SavedRepo, 0, len(doc.Repositories))
	for _, item := range doc.Repositories {
		var repo model.SavedRepo
		if err := json.Unmarshal(item, &repo); err != nil {
			log.Printf("registry: skipping malformed saved repo entry: %v", err)
			continue
		}
		if repo.RepoFullName == "" {
			log.Printf("registry: skipping saved repo entry with empty repo_full_name")
			continue
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

// SaveAll performs a full rewrite of the document.
func (r *Registry) SaveAll(repos []model.SavedRepo) error {
	if repos == nil {
		repos = []model.SavedRepo{}
	}
	doc := struct {
		Repositories []model.SavedRepo `json:"repositories"`
	}{Repositories: repos}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling saved repos: %w", err)
	}
	return r.store.Write(r.path, data)
}

// GetRepo returns the repo with the given full name, or nil if absent.
func (r *Registry) GetRepo(repoFullName string) (*model.SavedRepo, error) {
	repos, err := r.LoadAll()
	if err != nil {
		return nil, err
	}
	for i := range repos {
		if repos[i].RepoFullName == repoFullName {
			return &repos[i], nil
		}
	}
	return nil, nil
}

// AddRepo idempotently upserts a repo by full name. If a repo with this
// name already exists, its branch/git_provider/pool_size are overwritten
// in place and its embedded pool is preserved; otherwise the repo is
// appended as-is.
func (r *Registry) AddRepo(repo model.SavedRepo) error {
	repos, err := r.LoadAll()
	if err != nil {
		return err
	}
	repo.PoolSize = model.ClampPoolSize(repo.PoolSize)

	for i := range repos {
		if repos[i].RepoFullName == repo.RepoFullName {
			repos[i].Branch = repo.Branch
			repos[i].GitProvider = repo.GitProvider
			repos[i].PoolSize = repo.PoolSize
			return r.SaveAll(repos)
		}
	}
	repos = append(repos, repo)
	return r.SaveAll(repos)
}

// UpdateRepo replaces the stored repo matching repo.RepoFullName.
// Returns false if no such repo exists.
func (r *Registry) UpdateRepo(repo model.SavedRepo) (bool, error) {
	repos, err := r.LoadAll()
	if err != nil {
		return false, err
	}
	repo.PoolSize = model.ClampPoolSize(repo.PoolSize)
	for i := range repos {
		if repos[i].RepoFullName == repo.RepoFullName {
			repos[i] = repo
			return true, r.SaveAll(repos)
		}
	}
	return false, nil
}

// RemoveRepo deletes the repo with the given full name. Returns false if
// no such repo existed.
func (r *Registry) RemoveRepo(repoFullName string) (bool, error) {
	repos, err := r.LoadAll()
	if err != nil {
		return false, err
	}
	out := repos[:0:0]
	removed := false
	for _, repo := range repos {
		if repo.RepoFullName == repoFullName {
			removed = true
			continue
		}
		out = append(out, repo)
	}
	if !removed {
		return false, nil
	}
	return true, r.SaveAll(out)
}
