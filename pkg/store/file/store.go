// Package file provides a filesystem implementation of the record store.
//
// Each agent's store is persisted as one JSON document named by the agent's
// unique identifier. Writes go through a temp file and rename so a crashed
// write never leaves a truncated store behind.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
)

const storeExt = ".json"

// Store implements RecordStore using one JSON file per agent.
type Store struct {
	root string
}

// Config contains configuration for creating a file-backed record store.
type Config struct {
	// RootDir is the directory agent files are written to.
	RootDir string
}

// NewStore creates a new file-backed record store.
//
// Parameters:
//   - cfg: Configuration containing the root directory
//
// Returns:
//   - *Store: The store instance
//   - error: Error if the root directory cannot be created
func NewStore(cfg *Config) (*Store, error) {
	if cfg.RootDir == "" {
		return nil, core.NewEngineError("NewFileStore", core.ErrInvalidConfig)
	}
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return nil, core.NewEngineError("NewFileStore", err)
	}
	return &Store{root: cfg.RootDir}, nil
}

// Load reads and decodes the agent's JSON document.
func (s *Store) Load(ctx context.Context, agentID string) (*core.AgentMemoryStore, error) {
	if agentID == "" {
		return nil, core.NewEngineError("Load", core.ErrInvalidInput)
	}

	data, err := os.ReadFile(s.path(agentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, agentID)
		}
		return nil, fmt.Errorf("%w: %s: %v", core.ErrStorageOperation, agentID, err)
	}

	var mem core.AgentMemoryStore
	if err := json.Unmarshal(data, &mem); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrCorruptData, agentID, err)
	}

	return &mem, nil
}

// Save writes the store atomically via a temp file and rename.
func (s *Store) Save(ctx context.Context, mem *core.AgentMemoryStore) error {
	if mem == nil || mem.AgentID == "" {
		return core.NewEngineError("Save", core.ErrInvalidInput)
	}

	data, err := json.MarshalIndent(mem, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrStorageOperation, mem.AgentID, err)
	}

	path := s.path(mem.AgentID)
	tmp, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrStorageOperation, mem.AgentID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", core.ErrStorageOperation, mem.AgentID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", core.ErrStorageOperation, mem.AgentID, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", core.ErrStorageOperation, mem.AgentID, err)
	}

	return nil
}

// Delete removes the agent's file. Deleting an absent agent is not an error.
func (s *Store) Delete(ctx context.Context, agentID string) error {
	if agentID == "" {
		return core.NewEngineError("Delete", core.ErrInvalidInput)
	}
	if err := os.Remove(s.path(agentID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %s: %v", core.ErrStorageOperation, agentID, err)
	}
	return nil
}

// ListIDs enumerates the agent files under the root directory.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", core.ErrStorageOperation, err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, storeExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, storeExt))
	}
	return ids, nil
}

// Close is a no-op for the file store.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(agentID string) string {
	return filepath.Join(s.root, agentID+storeExt)
}
