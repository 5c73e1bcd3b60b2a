package store

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/coder-hombre/Voice-of-the-Village-sub000/pkg/core"
)

// CachedStore wraps a RecordStore with a TTL-bounded read cache.
//
// Loads are served from the cache when possible; saves and deletes write
// through to the backend and update or drop the cached entry. Stale entries
// are evicted by the cache's own TTL rather than ad hoc cleanup calls, so
// an agent deleted out-of-band reappears as absent once its entry expires.
//
// The cache never aliases caller state: Save caches a deep copy of the
// caller's store, and every Load hands out a fresh deep copy of the cached
// entry. Callers therefore get the same snapshot isolation a deserializing
// backend provides, and readers that skip the engine's coarse lock cannot
// observe a store being mutated by a concurrent sweep.
type CachedStore struct {
	backend RecordStore
	cache   *ristretto.Cache
	ttl     time.Duration
}

// NewCachedStore creates a read-through cache in front of backend.
//
// Parameters:
//   - backend: The underlying record store
//   - maxStores: Maximum number of agent stores held in the cache
//   - ttl: How long a cached store stays valid
//
// Returns the wrapped store, or an error if the cache cannot be built.
func NewCachedStore(backend RecordStore, maxStores int64, ttl time.Duration) (*CachedStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxStores * 10,
		MaxCost:     maxStores,
		BufferItems: 64,
	})
	if err != nil {
		return nil, core.NewEngineError("NewCachedStore", err)
	}

	return &CachedStore{
		backend: backend,
		cache:   cache,
		ttl:     ttl,
	}, nil
}

// Load returns a copy of the cached store if present, otherwise loads from
// the backend and caches the result.
func (c *CachedStore) Load(ctx context.Context, agentID string) (*core.AgentMemoryStore, error) {
	if v, ok := c.cache.Get(agentID); ok {
		if s, ok := v.(*core.AgentMemoryStore); ok {
			return s.Clone(), nil
		}
	}

	s, err := c.backend.Load(ctx, agentID)
	if err != nil {
		return nil, err
	}

	c.cache.SetWithTTL(agentID, s.Clone(), 1, c.ttl)
	return s, nil
}

// Save writes through to the backend and refreshes the cached entry with a
// copy of the saved store.
func (c *CachedStore) Save(ctx context.Context, s *core.AgentMemoryStore) error {
	if err := c.backend.Save(ctx, s); err != nil {
		return err
	}
	c.cache.SetWithTTL(s.AgentID, s.Clone(), 1, c.ttl)
	return nil
}

// Delete removes the agent from the backend and drops the cached entry.
func (c *CachedStore) Delete(ctx context.Context, agentID string) error {
	if err := c.backend.Delete(ctx, agentID); err != nil {
		return err
	}
	c.cache.Del(agentID)
	return nil
}

// ListIDs always consults the backend; agent enumeration is not cached.
func (c *CachedStore) ListIDs(ctx context.Context) ([]string, error) {
	return c.backend.ListIDs(ctx)
}

// Close closes the cache and the underlying backend.
func (c *CachedStore) Close() error {
	c.cache.Close()
	return c.backend.Close()
}
