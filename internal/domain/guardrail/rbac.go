package guardrail

import (
	"context"
	"path"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
	"github.com/cerberusgate/cerberusgate/pkg/mcp"
)

// RBACType is the registry tag for the tool-access-control guardrail.
const RBACType = "rbac"

// rbacDefaultAction is the fallback when neither allowed_tools nor
// denied_tools decide the outcome.
const rbacDefaultAction = "deny"

// rbacGuardrail enforces allow/deny glob lists over tools/call requests.
type rbacGuardrail struct {
	allowedTools  []string
	deniedTools   []string
	defaultAction string
	condition     *conditionGate
}

// NewRBAC constructs the RBAC guardrail from an effective config. Matching
// shell-style globs are validated here (path.Match rejects malformed
// patterns), failing construction with a GuardrailConfigError.
func NewRBAC(effectiveConfig map[string]interface{}) (Guardrail, error) {
	g := &rbacGuardrail{
		allowedTools:  configStringSlice(effectiveConfig, "allowed_tools"),
		deniedTools:   configStringSlice(effectiveConfig, "denied_tools"),
		defaultAction: configString(effectiveConfig, "default_action", rbacDefaultAction),
	}

	for _, pattern := range append(append([]string{}, g.allowedTools...), g.deniedTools...) {
		if _, err := path.Match(pattern, "probe"); err != nil {
			return nil, &governance.GuardrailConfigError{GuardrailType: RBACType, Cause: err}
		}
	}

	gate, err := newConditionGate(effectiveConfig)
	if err != nil {
		return nil, &governance.GuardrailConfigError{GuardrailType: RBACType, Cause: err}
	}
	g.condition = gate

	return g, nil
}

func (g *rbacGuardrail) Type() string { return RBACType }

func (g *rbacGuardrail) SupportedDirections() []governance.Direction {
	return []governance.Direction{governance.DirectionRequest}
}

// globMatch reports whether any of patterns matches tool under
// shell-style (path.Match) semantics: case-sensitive, "*"/"?" wildcards,
// no "**" recursive matching.
func globMatch(patterns []string, tool string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, tool); err == nil && ok {
			return true
		}
	}
	return false
}

func (g *rbacGuardrail) Evaluate(ctx context.Context, message *mcp.Message, evalCtx EvalContext) (Outcome, error) {
	if message.Method() != "tools/call" {
		return Allow(nil), nil
	}

	if !g.condition.applies(evalCtx, message) {
		return Allow(nil), nil
	}

	tool := message.ToolName()
	if tool == "" {
		return Allow(nil), nil
	}

	if globMatch(g.deniedTools, tool) {
		return Block("tool explicitly denied: "+tool, SeverityWarning, map[string]interface{}{"tool": tool}), nil
	}

	if globMatch(g.allowedTools, tool) {
		return Allow(map[string]interface{}{"tool": tool}), nil
	}

	if len(g.allowedTools) > 0 {
		// Deny-by-omission: an allowlist is configured and this tool isn't on it.
		return Block("tool not in allowed_tools: "+tool, SeverityWarning, map[string]interface{}{"tool": tool}), nil
	}

	if g.defaultAction == "allow" {
		return Allow(map[string]interface{}{"tool": tool}), nil
	}
	return Block("default_action=deny for tool: "+tool, SeverityWarning, map[string]interface{}{"tool": tool}), nil
}
