package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
)

// DefaultPolicyCacheTTL is the memoization window for resolved policy sets.
const DefaultPolicyCacheTTL = 5 * time.Minute

// PolicyResolver loads the collected view of every policy applicable to a
// scope triple, memoizing results behind a short TTL cache keyed by an
// xxhash digest of the triple (cheap, collision-resistant enough for a
// cache key, and the same hashing idiom MemoryPolicyCache uses for its
// own keys).
type PolicyResolver struct {
	store policyCacheStore
	cache governance.PolicyCache
	ttl   time.Duration
}

type policyCacheStore interface {
	ListForScope(ctx context.Context, organisationID, workspaceID, agentID string) ([]governance.Policy, error)
}

// NewPolicyResolver builds a resolver over store, memoizing through cache.
// A nil cache disables memoization (every Resolve call hits the store).
func NewPolicyResolver(store governance.PolicyStore, cache governance.PolicyCache) *PolicyResolver {
	return &PolicyResolver{store: store, cache: cache, ttl: DefaultPolicyCacheTTL}
}

// Resolve returns the collected EffectivePolicySet for (organisationID,
// workspaceID, agentID): every enabled, non-tombstoned policy whose
// scope_match predicate includes this triple, across all three levels.
func (r *PolicyResolver) Resolve(ctx context.Context, organisationID, workspaceID, agentID string) (*governance.EffectivePolicySet, error) {
	if r.cache != nil {
		if set, ok := r.cache.Get(ctx, organisationID, workspaceID, agentID); ok {
			return set, nil
		}
	}

	policies, err := r.store.ListForScope(ctx, organisationID, workspaceID, agentID)
	if err != nil {
		return nil, fmt.Errorf("list policies for scope: %w", err)
	}

	set := &governance.EffectivePolicySet{
		OrganisationID: organisationID,
		WorkspaceID:    workspaceID,
		AgentID:        agentID,
		Policies:       policies,
	}

	if r.cache != nil {
		r.cache.Set(ctx, organisationID, workspaceID, agentID, set)
	}

	return set, nil
}

// CacheKey computes the xxhash-based cache key for a scope triple. Exposed
// for outbound PolicyCache implementations that want a ready-made key
// rather than re-deriving one.
func CacheKey(organisationID, workspaceID, agentID string) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(organisationID)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(workspaceID)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(agentID)
	return h.Sum64()
}

// Resolved computes the most-specific-wins merged config for each
// guardrail type present in set: at most one Policy per guardrail type
// survives, the one whose Level() is most specific. Distinct from the
// EffectivePolicySet's collected view -- this is the pipeline's resolved
// view.
func Resolved(set *governance.EffectivePolicySet) map[string]governance.Policy {
	winners := make(map[string]governance.Policy, len(set.Policies))
	for _, p := range set.Policies {
		if !p.Enabled || p.Tombstoned() {
			continue
		}
		current, exists := winners[p.GuardrailType]
		if !exists || p.Level().MoreSpecificThan(current.Level()) {
			winners[p.GuardrailType] = p
		}
	}
	return winners
}
