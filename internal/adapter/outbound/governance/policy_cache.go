package governance

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
)

// MemoryPolicyCache is an in-process, TTL-expiring PolicyCache keyed by an
// xxhash digest of the (organisation, workspace, agent) scope triple.
// Invalidation is best-effort: InvalidateScope drops every entry whose
// stored triple overlaps the given scope, which in an in-process map
// means a linear scan -- acceptable at the catalog sizes this gateway
// targets (hundreds of concurrently active agents per process, not
// millions).
type MemoryPolicyCache struct {
	mu      sync.RWMutex
	entries map[uint64]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	organisationID, workspaceID, agentID string
	set                                  *governance.EffectivePolicySet
	expiresAt                            time.Time
}

// NewMemoryPolicyCache builds a cache with the given TTL.
func NewMemoryPolicyCache(ttl time.Duration) *MemoryPolicyCache {
	return &MemoryPolicyCache{entries: make(map[uint64]cacheEntry), ttl: ttl}
}

func scopeKey(organisationID, workspaceID, agentID string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(organisationID)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(workspaceID)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(agentID)
	return h.Sum64()
}

// Get returns the cached set for the scope triple, or (nil, false) if
// absent or expired.
func (c *MemoryPolicyCache) Get(ctx context.Context, organisationID, workspaceID, agentID string) (*governance.EffectivePolicySet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[scopeKey(organisationID, workspaceID, agentID)]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.set, true
}

// Set stores set under the scope triple's key with the cache's TTL.
func (c *MemoryPolicyCache) Set(ctx context.Context, organisationID, workspaceID, agentID string, set *governance.EffectivePolicySet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[scopeKey(organisationID, workspaceID, agentID)] = cacheEntry{
		organisationID: organisationID,
		workspaceID:    workspaceID,
		agentID:        agentID,
		set:            set,
		expiresAt:      time.Now().Add(c.ttl),
	}
}

// InvalidateScope drops every entry overlapping the given scope: an exact
// match on whichever of organisationID/workspaceID/agentID is non-empty.
func (c *MemoryPolicyCache) InvalidateScope(ctx context.Context, organisationID, workspaceID, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if entry.organisationID != organisationID {
			continue
		}
		if workspaceID != "" && entry.workspaceID != workspaceID {
			continue
		}
		if agentID != "" && entry.agentID != agentID {
			continue
		}
		delete(c.entries, key)
	}
}

var _ governance.PolicyCache = (*MemoryPolicyCache)(nil)
