// Package guardrail defines the guardrail capability set (type tag,
// supported directions, config-validating constructor, evaluator) and the
// eager, immutable-after-startup registry that dispatches across
// implementations. See the individual files (rbac.go, pii.go, content.go,
// ratelimit.go) for the concrete guardrails.
package guardrail

import (
	"context"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
	"github.com/cerberusgate/cerberusgate/pkg/mcp"
)

// OutcomeKind is the tag of a GuardrailOutcome.
type OutcomeKind string

const (
	OutcomeAllow   OutcomeKind = "allow"
	OutcomeBlock   OutcomeKind = "block"
	OutcomeModify  OutcomeKind = "modify"
	OutcomeLogOnly OutcomeKind = "log_only"
)

// Severity classifies how serious a triggered guardrail's finding is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
)

// Outcome is the typed result of one guardrail's evaluate call.
type Outcome struct {
	Kind     OutcomeKind
	Reason   string
	Severity Severity
	Details  map[string]interface{}

	// Modified carries the replacement message when Kind == OutcomeModify.
	Modified *mcp.Message
}

// Allow builds an Allow outcome, optionally carrying details.
func Allow(details map[string]interface{}) Outcome {
	return Outcome{Kind: OutcomeAllow, Details: details}
}

// Block builds a Block outcome.
func Block(reason string, severity Severity, details map[string]interface{}) Outcome {
	return Outcome{Kind: OutcomeBlock, Reason: reason, Severity: severity, Details: details}
}

// Modify builds a Modify outcome carrying the replacement message.
func Modify(modified *mcp.Message, reason string, details map[string]interface{}) Outcome {
	return Outcome{Kind: OutcomeModify, Modified: modified, Reason: reason, Details: details}
}

// LogOnly builds a LogOnly outcome.
func LogOnly(reason string, details map[string]interface{}) Outcome {
	return Outcome{Kind: OutcomeLogOnly, Reason: reason, Details: details}
}

// EvalContext carries the request-scoped values a guardrail's evaluate
// call may need beyond the message itself.
type EvalContext struct {
	Agent     governance.AgentContext
	Direction mcp.Direction
}

// Guardrail is the capability set every guardrail implementation exposes.
// Construction validates the merged effective config eagerly (e.g.
// compiling regexes or a CEL condition) and must fail fast with a
// *governance.GuardrailConfigError on malformed input rather than failing
// lazily inside Evaluate.
type Guardrail interface {
	// Type returns the guardrail's registry tag, e.g. "rbac", "pii_ssn".
	Type() string
	// SupportedDirections reports which of request/response this
	// implementation can evaluate.
	SupportedDirections() []governance.Direction
	// Evaluate runs the guardrail's check against message in the given
	// context. Implementations must never panic; unexpected failures
	// should be returned as an error so the pipeline can classify it as
	// a GuardrailExecutionError.
	Evaluate(ctx context.Context, message *mcp.Message, evalCtx EvalContext) (Outcome, error)
}

// Constructor builds a Guardrail from an effective config map (the
// guardrail's default_config overridden key-by-key by the winning
// policy's config, per the config-override semantics in the design
// notes). Returns a *governance.GuardrailConfigError on invalid config.
type Constructor func(effectiveConfig map[string]interface{}) (Guardrail, error)

// Registry is a static, eager map from guardrail type tag to constructor.
// Iteration order is the deterministic pipeline order: registration order,
// which callers are expected to keep RBAC, PII, content-filter, rate-limit
// (matching §4.3's ordering rationale: cheap denials short-circuit
// expensive scanning).
type Registry struct {
	order        []string
	constructors map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor under the given type tag. Panics on a
// duplicate tag: this is a startup-time programming error, not a runtime
// condition, and registration happens once before the registry is
// published for concurrent read access.
func (r *Registry) Register(guardrailType string, ctor Constructor) {
	if _, exists := r.constructors[guardrailType]; exists {
		panic("guardrail: duplicate registration for type " + guardrailType)
	}
	r.order = append(r.order, guardrailType)
	r.constructors[guardrailType] = ctor
}

// Order returns the registry's deterministic iteration order.
func (r *Registry) Order() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Construct builds a Guardrail instance for guardrailType using the given
// effective config. Returns an error if the type is not registered or
// construction fails validation.
func (r *Registry) Construct(guardrailType string, effectiveConfig map[string]interface{}) (Guardrail, error) {
	ctor, ok := r.constructors[guardrailType]
	if !ok {
		return nil, &governance.GuardrailConfigError{
			GuardrailType: guardrailType,
			Cause:         errUnknownGuardrailType,
		}
	}
	return ctor(effectiveConfig)
}

var errUnknownGuardrailType = unknownGuardrailTypeError{}

type unknownGuardrailTypeError struct{}

func (unknownGuardrailTypeError) Error() string { return "unknown guardrail type" }
