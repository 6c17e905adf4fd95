package guardrail

import (
	"context"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
	"github.com/cerberusgate/cerberusgate/pkg/mcp"
)

// Registry tags for the two rate-limit windows.
const (
	RateLimitPerMinuteType = "rate_limit_per_minute"
	RateLimitPerHourType   = "rate_limit_per_hour"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
)

// rateLimitGuardrail enforces a sliding-window request count, request-only,
// against a shared RateLimitStore keyed by agent and tool. An optional
// per_tool_limits map overrides the guardrail's default limit for specific
// tool names.
type rateLimitGuardrail struct {
	guardrailType string
	store         governance.RateLimitStore
	windowSeconds int
	limit         int
	perToolLimits map[string]int
	condition     *conditionGate
}

// NewRateLimit returns a Constructor for one rate-limit window bound to
// store, reading "limit" (default 60) and "per_tool_limits" (a
// map[string]int override keyed by tool name) from the effective config.
func NewRateLimit(guardrailType string, windowSeconds int, store governance.RateLimitStore) Constructor {
	return func(effectiveConfig map[string]interface{}) (Guardrail, error) {
		gate, err := newConditionGate(effectiveConfig)
		if err != nil {
			return nil, &governance.GuardrailConfigError{GuardrailType: guardrailType, Cause: err}
		}

		g := &rateLimitGuardrail{
			guardrailType: guardrailType,
			store:         store,
			windowSeconds: windowSeconds,
			limit:         configInt(effectiveConfig, "limit", 60),
			perToolLimits: configIntMap(effectiveConfig, "per_tool_limits"),
			condition:     gate,
		}
		return g, nil
	}
}

// configIntMap reads a per-tool override map. Each entry is either a bare
// int limit or an object shaped {"limit": N}; any other shape is skipped.
func configIntMap(cfg map[string]interface{}, key string) map[string]int {
	raw, ok := cfg[key].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]int, len(raw))
	for k, v := range raw {
		switch n := v.(type) {
		case int:
			out[k] = n
		case int64:
			out[k] = int(n)
		case float64:
			out[k] = int(n)
		case map[string]interface{}:
			switch lv := n["limit"].(type) {
			case int:
				out[k] = lv
			case int64:
				out[k] = int(lv)
			case float64:
				out[k] = int(lv)
			}
		}
	}
	return out
}

func (g *rateLimitGuardrail) Type() string { return g.guardrailType }

func (g *rateLimitGuardrail) SupportedDirections() []governance.Direction {
	return []governance.Direction{governance.DirectionRequest}
}

func (g *rateLimitGuardrail) limitFor(tool string) int {
	if tool != "" {
		if override, ok := g.perToolLimits[tool]; ok {
			return override
		}
	}
	return g.limit
}

func (g *rateLimitGuardrail) Evaluate(ctx context.Context, message *mcp.Message, evalCtx EvalContext) (Outcome, error) {
	if evalCtx.Direction != mcp.ClientToServer {
		return Allow(nil), nil
	}
	if message.Method() != "tools/call" {
		return Allow(nil), nil
	}

	if !g.condition.applies(evalCtx, message) {
		return Allow(nil), nil
	}

	tool := message.ToolName()
	limit := g.limitFor(tool)
	key := g.guardrailType + ":" + evalCtx.Agent.AgentID + ":" + tool

	allowed, current, retryAfter, err := g.store.CheckAndIncrement(ctx, key, limit, g.windowSeconds)
	if err != nil {
		return Outcome{}, err
	}

	if !allowed {
		return Block("rate limit exceeded", SeverityWarning, map[string]interface{}{
			"tool":              tool,
			"limit":             limit,
			"current_count":     current,
			"retry_after_seconds": retryAfter,
			"window_seconds":    g.windowSeconds,
		}), nil
	}

	return Allow(map[string]interface{}{"tool": tool, "current_count": current, "limit": limit}), nil
}
