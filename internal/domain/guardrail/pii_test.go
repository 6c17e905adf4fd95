package guardrail

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"

	"github.com/cerberusgate/cerberusgate/pkg/mcp"
)

func resultMessage(t *testing.T, text string) *mcp.Message {
	t.Helper()
	result, err := json.Marshal(map[string]interface{}{
		"content": []interface{}{
			map[string]interface{}{"type": "text", "text": text},
		},
	})
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	id, _ := jsonrpc.MakeID(float64(1))
	return &mcp.Message{
		Decoded: &jsonrpc.Response{ID: id, Result: result},
	}
}

func TestPIIGuardrail_RedactsSSNInResponse(t *testing.T) {
	g, err := NewPII("ssn")(map[string]interface{}{})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	msg := resultMessage(t, "Customer SSN is 523-45-6789, please verify.")
	outcome, err := g.Evaluate(context.Background(), msg, EvalContext{Direction: mcp.ServerToClient})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome.Kind != OutcomeModify {
		t.Fatalf("expected Modify, got %v", outcome.Kind)
	}

	v, err := outcome.Modified.ResultValue()
	if err != nil {
		t.Fatalf("result value: %v", err)
	}
	encoded, _ := json.Marshal(v)
	if strings.Contains(string(encoded), "523-45-6789") {
		t.Fatalf("expected SSN to be redacted, got %s", encoded)
	}
	if !strings.Contains(string(encoded), "[REDACTED:SSN]") {
		t.Fatalf("expected [REDACTED:SSN] placeholder, got %s", encoded)
	}
}

func TestPIIGuardrail_RejectsInvalidSSNAreaCode(t *testing.T) {
	g, err := NewPII("ssn")(map[string]interface{}{})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	msg := resultMessage(t, "Reference number 000-45-6789 is not a real SSN.")
	outcome, err := g.Evaluate(context.Background(), msg, EvalContext{Direction: mcp.ServerToClient})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome.Kind != OutcomeAllow {
		t.Fatalf("expected Allow (invalid area code should not validate), got %v", outcome.Kind)
	}
}

func TestPIIGuardrail_BlockAction(t *testing.T) {
	g, err := NewPII("credit_card")(map[string]interface{}{"action": "block"})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	msg := resultMessage(t, "Card on file: 4532015112830366")
	outcome, err := g.Evaluate(context.Background(), msg, EvalContext{Direction: mcp.ServerToClient})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome.Kind != OutcomeBlock {
		t.Fatalf("expected Block, got %v", outcome.Kind)
	}
}

func TestPIIGuardrail_DirectionSkip(t *testing.T) {
	g, err := NewPII("email")(map[string]interface{}{"direction": "request"})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	msg := resultMessage(t, "contact me at person@example.com")
	outcome, err := g.Evaluate(context.Background(), msg, EvalContext{Direction: mcp.ServerToClient})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if outcome.Kind != OutcomeAllow {
		t.Fatalf("expected Allow because guardrail is request-only, got %v", outcome.Kind)
	}
}

func TestNewPII_UnknownType(t *testing.T) {
	if _, err := NewPII("not_a_real_type")(map[string]interface{}{}); err == nil {
		t.Fatal("expected error for unknown PII type")
	}
}
