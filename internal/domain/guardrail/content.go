package guardrail

import (
	"context"
	"regexp"
	"strings"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
	"github.com/cerberusgate/cerberusgate/pkg/mcp"
)

// ContentFilterType is the registry tag for the keyword/regex content
// filter guardrail.
const ContentFilterType = "content_filter"

type compiledPattern struct {
	regex  *regexp.Regexp
	action string
}

// contentFilterGuardrail matches scanned text against a case-insensitive
// keyword list and a set of compiled regex patterns, each independently
// tagged to block or warn.
type contentFilterGuardrail struct {
	blockedKeywords []string
	warnedKeywords  []string
	patterns        []compiledPattern
	direction       governance.Direction
	condition       *conditionGate
}

// NewContentFilter constructs the content filter from an effective config.
// Keywords are lower-cased once at construction; regex_patterns entries are
// each a {pattern, action} pair compiled eagerly (case-insensitive) so a
// malformed pattern fails fast as a GuardrailConfigError rather than at
// evaluation time.
func NewContentFilter(effectiveConfig map[string]interface{}) (Guardrail, error) {
	keywords, _ := effectiveConfig["keywords"].(map[string]interface{})
	g := &contentFilterGuardrail{
		blockedKeywords: lowerAll(configStringSlice(keywords, "block")),
		warnedKeywords:  lowerAll(configStringSlice(keywords, "warn")),
		direction:       governance.Direction(configString(effectiveConfig, "direction", string(governance.DirectionBoth))),
	}

	rawPatterns, _ := effectiveConfig["regex_patterns"].([]interface{})
	for _, rp := range rawPatterns {
		entry, ok := rp.(map[string]interface{})
		if !ok {
			continue
		}
		pattern := configString(entry, "pattern", "")
		if pattern == "" {
			continue
		}
		action := configString(entry, "action", "block")
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, &governance.GuardrailConfigError{GuardrailType: ContentFilterType, Cause: err}
		}
		g.patterns = append(g.patterns, compiledPattern{regex: re, action: action})
	}

	gate, err := newConditionGate(effectiveConfig)
	if err != nil {
		return nil, &governance.GuardrailConfigError{GuardrailType: ContentFilterType, Cause: err}
	}
	g.condition = gate

	return g, nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func (g *contentFilterGuardrail) Type() string { return ContentFilterType }

func (g *contentFilterGuardrail) SupportedDirections() []governance.Direction {
	return []governance.Direction{governance.DirectionRequest, governance.DirectionResponse}
}

func (g *contentFilterGuardrail) currentDirection(dir mcp.Direction) governance.Direction {
	if dir == mcp.ClientToServer {
		return governance.DirectionRequest
	}
	return governance.DirectionResponse
}

func (g *contentFilterGuardrail) Evaluate(ctx context.Context, message *mcp.Message, evalCtx EvalContext) (Outcome, error) {
	if !g.direction.Includes(g.currentDirection(evalCtx.Direction)) {
		return Allow(nil), nil
	}

	if !g.condition.applies(evalCtx, message) {
		return Allow(nil), nil
	}

	content, err := message.ScanText(evalCtx.Direction)
	if err != nil || content == "" {
		return Allow(nil), nil
	}
	lowered := strings.ToLower(content)

	var blockedMatches, warnedMatches []string

	for _, kw := range g.blockedKeywords {
		if strings.Contains(lowered, kw) {
			blockedMatches = append(blockedMatches, kw)
		}
	}
	for _, kw := range g.warnedKeywords {
		if strings.Contains(lowered, kw) {
			warnedMatches = append(warnedMatches, kw)
		}
	}
	for _, p := range g.patterns {
		if !p.regex.MatchString(content) {
			continue
		}
		if p.action == "block" {
			blockedMatches = append(blockedMatches, p.regex.String())
		} else {
			warnedMatches = append(warnedMatches, p.regex.String())
		}
	}

	if len(blockedMatches) > 0 {
		return Block("content matched blocked pattern", SeverityCritical, map[string]interface{}{
			"matches": blockedMatches,
		}), nil
	}

	if len(warnedMatches) > 0 {
		return LogOnly("content matched warned pattern", map[string]interface{}{
			"matches": warnedMatches,
		}), nil
	}

	return Allow(nil), nil
}
