package guardrail

import (
	"context"
	"fmt"
	"time"

	celgo "github.com/google/cel-go/cel"

	"github.com/cerberusgate/cerberusgate/pkg/mcp"
)

// Hardening limits for condition expressions: an expression this gate runs
// is a pre-filter over already-authenticated traffic, not untrusted input,
// but these budgets keep a misconfigured condition from becoming a
// cost-exhaustion surface.
const (
	maxConditionLength   = 1024
	maxConditionNesting  = 50
	maxConditionCost     = 100_000
	conditionEvalTimeout = 5 * time.Second
	interruptCheckFreq   = 100
)

// validateConditionNesting rejects a condition expression whose
// parenthesis/bracket/brace nesting exceeds maxConditionNesting.
func validateConditionNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxConditionNesting {
		return fmt.Errorf("condition expression nesting too deep: %d levels (max %d)", maxDepth, maxConditionNesting)
	}
	return nil
}

// conditionEnv is built once per process; CEL environments are safe for
// concurrent use to compile and run programs.
var conditionEnv = buildConditionEnv()

func buildConditionEnv() *celgo.Env {
	env, err := celgo.NewEnv(
		celgo.Variable("tool", celgo.StringType),
		celgo.Variable("method", celgo.StringType),
		celgo.Variable("direction", celgo.StringType),
		celgo.Variable("agent", celgo.MapType(celgo.StringType, celgo.StringType)),
	)
	if err != nil {
		// The environment declaration is static and checked by tests;
		// a failure here is a programming error, not a runtime condition.
		panic(fmt.Sprintf("guardrail: failed to build condition CEL environment: %v", err))
	}
	return env
}

// conditionGate is the optional cross-cutting CEL pre-filter described in
// the condition addition to §4.4: when present, a false (or erroring)
// evaluation makes the guardrail's own check not apply to this message at
// all (fail-open to Allow). When absent, the guardrail always applies,
// matching the unconditional baseline behaviour.
type conditionGate struct {
	program celgo.Program
}

// newConditionGate compiles the optional "condition" config key. A missing
// key yields a nil gate (applies() always true); a present key that fails
// to compile is a construction-time GuardrailConfigError.
func newConditionGate(effectiveConfig map[string]interface{}) (*conditionGate, error) {
	expr := configString(effectiveConfig, "condition", "")
	if expr == "" {
		return nil, nil
	}
	if len(expr) > maxConditionLength {
		return nil, fmt.Errorf("condition expression too long: %d chars (max %d)", len(expr), maxConditionLength)
	}
	if err := validateConditionNesting(expr); err != nil {
		return nil, err
	}

	ast, issues := conditionEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition expression failed to compile: %w", issues.Err())
	}
	prg, err := conditionEnv.Program(ast,
		celgo.EvalOptions(celgo.OptOptimize),
		celgo.CostLimit(maxConditionCost),
		celgo.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("condition expression failed to build program: %w", err)
	}
	return &conditionGate{program: prg}, nil
}

// applies reports whether the guardrail's static rule should run for this
// message. A nil gate (no condition configured) always applies. Evaluation
// errors fail open: an unrelated guardrail condition misbehaving must
// never itself become a blanket denial of service.
func (g *conditionGate) applies(evalCtx EvalContext, message *mcp.Message) bool {
	if g == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), conditionEvalTimeout)
	defer cancel()

	activation := map[string]interface{}{
		"tool":      message.ToolName(),
		"method":    message.Method(),
		"direction": directionString(evalCtx.Direction),
		"agent": map[string]string{
			"workspace_id":    evalCtx.Agent.WorkspaceID,
			"organisation_id": evalCtx.Agent.OrganisationID,
		},
	}

	result, _, err := g.program.ContextEval(ctx, activation)
	if err != nil {
		return false
	}
	ok, isBool := result.Value().(bool)
	if !isBool {
		return false
	}
	return ok
}

func directionString(d mcp.Direction) string {
	if d == mcp.ClientToServer {
		return "request"
	}
	return "response"
}
