// Package governance contains the domain types for the three-level
// policy hierarchy (organisation -> workspace -> agent) and the runtime
// values produced while resolving and enforcing it.
package governance

import "time"

// Organisation is the top-level tenant.
type Organisation struct {
	ID        string
	Slug      string
	Name      string
	Settings  map[string]interface{}
	Active    bool
	CreatedAt time.Time
	DeletedAt *time.Time
}

// Tombstoned reports whether the organisation has been soft-deleted.
func (o *Organisation) Tombstoned() bool {
	return o.DeletedAt != nil
}

// EnvironmentType identifies the kind of environment a workspace represents.
type EnvironmentType string

const (
	EnvironmentProduction  EnvironmentType = "production"
	EnvironmentStaging     EnvironmentType = "staging"
	EnvironmentDevelopment EnvironmentType = "development"
)

// Workspace is an environment owned by exactly one organisation.
type Workspace struct {
	ID              string
	OrganisationID  string
	Slug            string
	EnvironmentType EnvironmentType
	UpstreamURL     string
	Settings        map[string]interface{}
	Active          bool
	DeletedAt       *time.Time
}

// Tombstoned reports whether the workspace has been soft-deleted.
func (w *Workspace) Tombstoned() bool {
	return w.DeletedAt != nil
}

// AgentCredential is an opaque bearer grant usable by one non-human agent.
// The raw token is never stored; TokenHash is a one-way digest, either a
// plain SHA-256 hex digest or an Argon2id encoded hash (distinguished by
// the "$argon2id$" prefix).
type AgentCredential struct {
	ID           string
	WorkspaceID  string
	Name         string
	TokenHash    string
	TokenPrefix  string
	Active       bool
	Revoked      bool
	ExpiresAt    *time.Time
	LastUsedAt   *time.Time
	UsageCount   int64
}

// Valid reports whether the credential can currently be used to
// authenticate a request: active, not revoked, and not expired.
func (c *AgentCredential) Valid(now time.Time) bool {
	if !c.Active || c.Revoked {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// GuardrailCategory classifies a GuardrailDefinition.
type GuardrailCategory string

const (
	CategoryRBAC       GuardrailCategory = "rbac"
	CategoryPII        GuardrailCategory = "pii"
	CategoryContent    GuardrailCategory = "content"
	CategoryRateLimit  GuardrailCategory = "rate_limit"
)

// GuardrailDefinition is a catalog entry describing one guardrail type.
// Type uniquely determines Category.
type GuardrailDefinition struct {
	ID            string
	Type          string
	DisplayName   string
	Category      GuardrailCategory
	DefaultConfig map[string]interface{}
	Active        bool
}

// PolicyAction is the remediation a policy requests when its guardrail triggers.
type PolicyAction string

const (
	ActionBlock     PolicyAction = "block"
	ActionRedact    PolicyAction = "redact"
	ActionAlert     PolicyAction = "alert"
	ActionAuditOnly PolicyAction = "audit_only"
)

// ScopeLevel is the computed specificity of a Policy's binding.
type ScopeLevel string

const (
	ScopeOrganisation ScopeLevel = "organisation"
	ScopeWorkspace    ScopeLevel = "workspace"
	ScopeAgent        ScopeLevel = "agent"
)

// Policy binds one guardrail to one scope within an organisation.
type Policy struct {
	ID             string
	OrganisationID string
	WorkspaceID    string // empty at organisation scope
	AgentID        string // empty above agent scope
	GuardrailID    string
	GuardrailType  string
	Name           string
	Description    string
	Config         map[string]interface{}
	Action         PolicyAction
	Enabled        bool
	DeletedAt      *time.Time
}

// Tombstoned reports whether the policy has been soft-deleted.
func (p *Policy) Tombstoned() bool {
	return p.DeletedAt != nil
}

// Level computes the policy's scope level from which of WorkspaceID/AgentID
// are set. Agent-level requires WorkspaceID to also be set (data model
// invariant enforced by the store on write, not re-derived here).
func (p *Policy) Level() ScopeLevel {
	switch {
	case p.AgentID != "":
		return ScopeAgent
	case p.WorkspaceID != "":
		return ScopeWorkspace
	default:
		return ScopeOrganisation
	}
}

// levelPriority ranks scope levels for "more specific wins" comparisons;
// a higher number is more specific.
var levelPriority = map[ScopeLevel]int{
	ScopeOrganisation: 0,
	ScopeWorkspace:    1,
	ScopeAgent:        2,
}

// MoreSpecificThan reports whether level l is strictly more specific than other.
func (l ScopeLevel) MoreSpecificThan(other ScopeLevel) bool {
	return levelPriority[l] > levelPriority[other]
}

// AgentContext is the runtime-only value produced by credential resolution
// and carried through the proxy flow. It has no persistent identity.
type AgentContext struct {
	AgentID        string
	AgentName      string
	WorkspaceID    string
	OrganisationID string
	UpstreamURL    string
}

// EffectivePolicySet is the runtime-only, unresolved ("collected") view of
// every enabled, non-tombstoned policy applicable at (org, workspace, agent).
// It is distinct from the decision engine's resolved, most-specific-wins
// config map -- this type exists so a caller that wants the full collected
// view (e.g. an audit/display API) has a real value to use, per the
// collected-vs-resolved design decision.
type EffectivePolicySet struct {
	OrganisationID string
	WorkspaceID    string
	AgentID        string
	Policies       []Policy
}

// AuditRecord is an append-only decision trace. Immutable after write.
type AuditRecord struct {
	ID               string
	OrganisationID   string
	WorkspaceID      string
	AgentID          string
	AgentName        string
	RequestID        string
	SessionID        string
	Direction        Direction
	ToolName         string
	Decision         string
	Reason           string
	GuardrailResults map[string]GuardrailResult
	LatencyMS        float64
	CreatedAt        time.Time
}

// GuardrailResult is one entry of an AuditRecord's GuardrailResults map.
type GuardrailResult struct {
	Triggered  bool
	Action     string
	Details    map[string]interface{}
	Severity   string
}

// Direction is the flow direction of a message through the gateway.
type Direction string

const (
	DirectionRequest  Direction = "request"
	DirectionResponse Direction = "response"
	DirectionBoth     Direction = "both"
)

// Includes reports whether the configured direction d applies to the
// current leg (request or response). DirectionBoth always matches.
func (d Direction) Includes(current Direction) bool {
	return d == DirectionBoth || d == current
}
