package governance

import (
	"context"
	"errors"
)

// Sentinel errors for governance store operations.
var (
	// ErrCredentialNotFound is returned when no credential matches the presented digest.
	ErrCredentialNotFound = errors.New("governance: credential not found")
	// ErrWorkspaceNotFound is returned when a credential's owning workspace is missing.
	ErrWorkspaceNotFound = errors.New("governance: workspace not found")
	// ErrPolicyNotFound is returned when a policy lookup by ID misses.
	ErrPolicyNotFound = errors.New("governance: policy not found")
	// ErrDuplicatePolicy is returned on a write that would violate the
	// at-most-one-non-tombstoned-policy-per-scope-tuple invariant.
	ErrDuplicatePolicy = errors.New("governance: duplicate policy for scope and guardrail")
)

// CredentialStore resolves agent bearer credentials and tracks usage.
// Implementations are expected to perform a single indexed lookup joining
// the credential to its owning workspace (and, transitively, organisation).
type CredentialStore interface {
	// FindByTokenHash looks up a credential (joined with its workspace) by
	// the digest of a presented bearer token. Returns ErrCredentialNotFound
	// or ErrWorkspaceNotFound as appropriate; callers collapse both into a
	// single externally-visible InvalidCredential failure.
	FindByTokenHash(ctx context.Context, tokenHash string) (*AgentCredential, *Workspace, error)

	// Credentials returns every credential, for verification strategies
	// (e.g. Argon2id) that cannot look up by a deterministic hash of the
	// presented token and must instead verify against each candidate.
	Credentials(ctx context.Context) ([]AgentCredential, error)

	// BumpUsage increments usage_count and sets last_used_at for a
	// credential. Called fire-and-forget by the credential resolver; a
	// failure here MUST NOT be surfaced to the calling request.
	BumpUsage(ctx context.Context, credentialID string) error
}

// PolicyStore persists and queries policies across the three scope levels.
type PolicyStore interface {
	// ListForScope returns every enabled, non-tombstoned policy matching
	// any of the three scope_match disjuncts from the policy resolver's
	// contract: (org, nil, nil), (org, workspace, nil), (org, workspace, agent).
	ListForScope(ctx context.Context, organisationID, workspaceID, agentID string) ([]Policy, error)

	// Get returns a policy by ID.
	Get(ctx context.Context, id string) (*Policy, error)

	// Save creates or updates a policy, enforcing the uniqueness invariant.
	Save(ctx context.Context, p *Policy) error

	// Delete tombstones a policy by ID.
	Delete(ctx context.Context, id string) error
}

// PolicyCache memoises EffectivePolicySet lookups keyed by the
// (organisation, workspace, agent) triple, per the policy resolver's
// caching contract (§4.2): short TTL, best-effort invalidation.
type PolicyCache interface {
	Get(ctx context.Context, organisationID, workspaceID, agentID string) (*EffectivePolicySet, bool)
	Set(ctx context.Context, organisationID, workspaceID, agentID string, set *EffectivePolicySet)

	// InvalidateScope deletes all cache entries overlapping the given
	// scope: at minimum (org, *, *), or (org, workspace, *) if workspace
	// is known, or the exact triple if agent is also known.
	InvalidateScope(ctx context.Context, organisationID, workspaceID, agentID string)
}

// AuditSink is the minimal write-side port the decision engine emits
// AuditRecords through. The fuller query/analytics surface is out of
// scope (§1); this interface exists purely so the engine's "total
// function that always audits" contract has something concrete to call.
type AuditSink interface {
	Emit(ctx context.Context, record AuditRecord) error
}

// GuardrailCatalog resolves the static catalog of known guardrail types
// and their default config, seeded at startup (the built-in RBAC/PII/
// content-filter/rate-limit set) and never written to by the governance
// gateway itself (catalog administration is out of scope, §1).
type GuardrailCatalog interface {
	Get(ctx context.Context, guardrailType string) (*GuardrailDefinition, error)
	List(ctx context.Context) ([]GuardrailDefinition, error)
}

// RateLimitStore implements the sliding-window check-and-increment
// primitive the rate-limit guardrails share. Key is the caller-composed
// counter identity (e.g. agent id, guardrail type, and tool name joined
// together); window is the bucket width in seconds. Implementations must
// make CheckAndIncrement atomic: concurrent callers racing on the same key
// must never both observe "allowed" past the limit.
type RateLimitStore interface {
	// CheckAndIncrement atomically reads the current count for key's
	// active window, and if it is below limit, increments it and reports
	// allowed=true. If at or above limit, the counter is left unchanged,
	// allowed=false, and retryAfterSeconds estimates when the window
	// resets.
	CheckAndIncrement(ctx context.Context, key string, limit int, windowSeconds int) (allowed bool, current int, retryAfterSeconds int, err error)

	// CurrentCount reports key's current-window count without mutating it.
	CurrentCount(ctx context.Context, key string, windowSeconds int) (int, error)

	// Reset clears key's counters, for tests and administrative use.
	Reset(ctx context.Context, key string) error
}
