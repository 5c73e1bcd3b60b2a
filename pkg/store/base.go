// Package store provides interfaces and types for record store backends.
//
// It defines the RecordStore interface that all storage implementations must
// satisfy. A record store persists one AgentMemoryStore per agent identifier
// and must be safe to call from multiple maintenance sweeps concurrently;
// callers serialize load-mutate-save cycles with their own locking.
package store

import (
	"context"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
)

// RecordStore defines the interface for record store backends.
//
// All storage implementations (file, SQLite, PostgreSQL, MySQL) must
// implement this interface.
type RecordStore interface {
	// Load retrieves the store for the given agent.
	//
	// Returns core.ErrAgentNotFound (wrapped) if no store exists for the
	// agent, and core.ErrCorruptData (wrapped) if the persisted data cannot
	// be decoded.
	Load(ctx context.Context, agentID string) (*core.AgentMemoryStore, error)

	// Save persists the store, replacing any previous contents for the
	// same agent.
	Save(ctx context.Context, s *core.AgentMemoryStore) error

	// Delete removes the store for the given agent. Deleting an absent
	// agent is not an error.
	Delete(ctx context.Context, agentID string) error

	// ListIDs returns the identifiers of all agents with a persisted store.
	ListIDs(ctx context.Context) ([]string, error)

	// Close closes the store and releases resources.
	Close() error
}
