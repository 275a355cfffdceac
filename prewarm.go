// Package prewarm is the top-level entry point for the conversation
// warm-pool service.
//
// Use the Builder to compose a custom application:
//
//	app, err := prewarm.NewBuilder().
//	    WithConfig(cfg).
//	    WithConversationFactory(factory).
//	    WithConversationHost(convHost).
//	    Build()
//	app.Start(ctx)
package prewarm

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/jxucoder/prewarm/audit"
	"github.com/jxucoder/prewarm/config"
	"github.com/jxucoder/prewarm/host"
	"github.com/jxucoder/prewarm/httpapi"
	"github.com/jxucoder/prewarm/pool"
	"github.com/jxucoder/prewarm/registry"
	"github.com/jxucoder/prewarm/webhook"
)

// Builder constructs a prewarm App.
type Builder struct {
	config   config.Config
	store    registry.FileStore
	factory  host.ConversationFactory
	convHost host.ConversationHost
	auditDB  *audit.Store
}

// NewBuilder creates a new Builder with no configuration set; Build
// fills in every unset field with a default.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the application configuration.
func (b *Builder) WithConfig(cfg config.Config) *Builder {
	b.config = cfg
	return b
}

// WithFileStore sets the registry's backing store.
func (b *Builder) WithFileStore(s registry.FileStore) *Builder {
	b.store = s
	return b
}

// WithConversationFactory sets the glue that instantiates agent
// sessions. A production deployment must supply it; when it is unset,
// Build falls back to the in-memory host.InMemoryHost.
func (b *Builder) WithConversationFactory(f host.ConversationFactory) *Builder {
	b.factory = f
	return b
}

// WithConversationHost sets the glue that lets Warmers observe session
// progress.
func (b *Builder) WithConversationHost(h host.ConversationHost) *Builder {
	b.convHost = h
	return b
}

// Build creates the App. Missing components are filled with defaults.
func (b *Builder) Build() (*App, error) {
	if err := applyDefaults(b); err != nil {
		return nil, err
	}

	reg := registry.New(b.store, b.config.RegistryPath)

	var listener pool.StatusListener
	if b.auditDB != nil {
		listener = b.auditDB
	}

	manager := pool.NewManager(reg, b.factory, b.convHost, listener, pool.ManagerConfig{
		PollInterval: b.config.PollInterval,
		Deadline:     b.config.ReadinessDeadline,
	})

	wh := webhook.NewHandler(b.config.GitHubWebhookSecret, manager, reg)
	handler := httpapi.New(manager, wh)

	return &App{
		config:  b.config,
		manager: manager,
		auditDB: b.auditDB,
		handler: handler,
	}, nil
}

// App is a running prewarm application.
type App struct {
	config  config.Config
	manager *pool.Manager
	auditDB *audit.Store
	handler *httpapi.Handler
}

// Manager returns the underlying Pool Manager for direct access (e.g.
// from a CLI subcommand).
func (a *App) Manager() *pool.Manager { return a.manager }

// Start initializes the pool from the registry and serves HTTP until
// ctx is done.
func (a *App) Start(ctx context.Context) error {
	if err := a.manager.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing pool: %w", err)
	}

	srv := &http.Server{
		Addr:    a.config.ServerAddr,
		Handler: a.handler.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("prewarm server listening on %s", a.config.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	a.manager.Shutdown()
	if a.auditDB != nil {
		return a.auditDB.Close()
	}
	return nil
}
