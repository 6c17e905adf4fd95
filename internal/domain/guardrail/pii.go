package guardrail

import (
	"context"
	"strings"

	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
	"github.com/cerberusgate/cerberusgate/pkg/mcp"
)

// PIITypePrefix is the registry tag prefix; the five registered types are
// "pii_ssn", "pii_credit_card", "pii_email", "pii_phone", "pii_ip_address".
const PIITypePrefix = "pii_"

type piiFinding struct {
	value string
}

// piiGuardrail detects one PII kind (SSN, credit card, email, phone, IP)
// via an unanchored regex followed by a semantic validator, and either
// blocks or redacts valid findings.
type piiGuardrail struct {
	guardrailType    string
	piiType          string
	direction        governance.Direction
	action           string
	redactionPattern string
	condition        *conditionGate
}

// NewPII returns a Constructor bound to a specific PII type tag (e.g.
// "ssn"), for registration under "pii_ssn" etc.
func NewPII(piiType string) Constructor {
	return func(effectiveConfig map[string]interface{}) (Guardrail, error) {
		guardrailType := PIITypePrefix + piiType
		if _, known := piiPatterns[piiType]; !known {
			return nil, &governance.GuardrailConfigError{
				GuardrailType: guardrailType,
				Cause:         unknownPIITypeError{piiType: piiType},
			}
		}

		gate, err := newConditionGate(effectiveConfig)
		if err != nil {
			return nil, &governance.GuardrailConfigError{GuardrailType: guardrailType, Cause: err}
		}

		return &piiGuardrail{
			guardrailType:    guardrailType,
			piiType:          piiType,
			direction:        governance.Direction(configString(effectiveConfig, "direction", string(governance.DirectionResponse))),
			action:           configString(effectiveConfig, "action", "redact"),
			redactionPattern: configString(effectiveConfig, "redaction_pattern", "[REDACTED:{TYPE}]"),
			condition:        gate,
		}, nil
	}
}

type unknownPIITypeError struct{ piiType string }

func (e unknownPIITypeError) Error() string { return "unknown PII type: " + e.piiType }

func (g *piiGuardrail) Type() string { return g.guardrailType }

func (g *piiGuardrail) SupportedDirections() []governance.Direction {
	return []governance.Direction{governance.DirectionRequest, governance.DirectionResponse}
}

func (g *piiGuardrail) currentDirection(dir mcp.Direction) governance.Direction {
	if dir == mcp.ClientToServer {
		return governance.DirectionRequest
	}
	return governance.DirectionResponse
}

func (g *piiGuardrail) Evaluate(ctx context.Context, message *mcp.Message, evalCtx EvalContext) (Outcome, error) {
	current := g.currentDirection(evalCtx.Direction)
	if !g.direction.Includes(current) {
		return Allow(nil), nil
	}

	if !g.condition.applies(evalCtx, message) {
		return Allow(nil), nil
	}

	content, err := message.ScanText(evalCtx.Direction)
	if err != nil || content == "" {
		return Allow(nil), nil
	}

	findings := g.scan(content)
	if len(findings) == 0 {
		return Allow(nil), nil
	}

	if g.action == "block" {
		return Block(
			"blocked due to "+strings.ToUpper(g.piiType)+" detection",
			SeverityCritical,
			map[string]interface{}{"pii_type": g.piiType, "total_findings": len(findings)},
		), nil
	}

	modified, err := g.redact(message, evalCtx.Direction, findings)
	if err != nil {
		return Outcome{}, err
	}

	return Modify(modified, strings.ToUpper(g.piiType)+" redacted", map[string]interface{}{
		"pii_type":        g.piiType,
		"redaction_count": len(findings),
	}), nil
}

func (g *piiGuardrail) scan(content string) []piiFinding {
	pattern := piiPatterns[g.piiType]
	matches := pattern.regex.FindAllString(content, -1)

	findings := make([]piiFinding, 0, len(matches))
	for _, value := range matches {
		if pattern.validator != nil && !pattern.validator(value) {
			continue
		}
		findings = append(findings, piiFinding{value: value})
	}
	return findings
}

func (g *piiGuardrail) redact(message *mcp.Message, dir mcp.Direction, findings []piiFinding) (*mcp.Message, error) {
	replacement := strings.ReplaceAll(g.redactionPattern, "{TYPE}", strings.ToUpper(g.piiType))

	if dir == mcp.ClientToServer {
		v, err := message.ParamsValue()
		if err != nil || v == nil {
			return message, nil
		}
		redacted := applyRedactions(v, findings, replacement)
		return message.WithParams(redacted)
	}

	v, err := message.ResultValue()
	if err != nil || v == nil {
		return message, nil
	}
	redacted := applyRedactions(v, findings, replacement)
	return message.WithResult(redacted)
}

// applyRedactions recursively walks data (string, map, list; other types
// pass through untouched) substituting each finding's matched value with
// replacement. Operates on an already-deep-copied value: data is freshly
// unmarshalled JSON, so mutating it in place never touches the original
// message.
func applyRedactions(data interface{}, findings []piiFinding, replacement string) interface{} {
	switch v := data.(type) {
	case string:
		result := v
		for _, f := range findings {
			result = strings.ReplaceAll(result, f.value, replacement)
		}
		return result
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = applyRedactions(val, findings, replacement)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = applyRedactions(val, findings, replacement)
		}
		return out
	default:
		return v
	}
}
