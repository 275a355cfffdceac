package prewarm

import (
	"fmt"

	"github.com/jxucoder/prewarm/audit"
	"github.com/jxucoder/prewarm/config"
	"github.com/jxucoder/prewarm/host"
	"github.com/jxucoder/prewarm/registry"
)

func applyDefaults(b *Builder) error {
	if b.config.ServerAddr == "" {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		b.config = *loaded
	}
	if err := b.config.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if b.store == nil {
		store, err := registry.NewLocalFileStore(b.config.DataDir)
		if err != nil {
			return fmt.Errorf("initializing registry store: %w", err)
		}
		b.store = store
	}

	if b.auditDB == nil {
		db, err := audit.NewStore(b.config.AuditDBPath)
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}
		b.auditDB = db
	}

	if b.factory == nil || b.convHost == nil {
		// No production Conversation Factory is wired; fall back to an
		// in-memory reference implementation so the service still
		// starts (useful for local development).
		mem := host.NewInMemoryHost(1)
		if b.factory == nil {
			b.factory = mem
		}
		if b.convHost == nil {
			b.convHost = mem
		}
	}

	return nil
}
