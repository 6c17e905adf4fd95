package governance

import (
	"encoding/json"
	"net/http"

	"github.com/cerberusgate/cerberusgate/internal/domain/guardrail"
	"github.com/cerberusgate/cerberusgate/internal/service"
)

// JSON-RPC error codes the proxy endpoint exposes in-band. All of them
// ride inside an HTTP 200 response -- the gateway never returns a non-200
// status for a governance or upstream failure, so strict JSON-RPC clients
// can parse every outcome uniformly.
const (
	codeGovernanceBlocked = -32001
	codeParseError        = -32700
	codeUpstreamError     = -32003
	codeInternalError     = -32603
)

type envelopeError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   envelopeError   `json:"error"`
}

// writeErrorEnvelope writes a JSON-RPC error response with HTTP 200, per
// the gateway's "always 200, in-band errors" contract.
func writeErrorEnvelope(w http.ResponseWriter, id json.RawMessage, code int, message string, data map[string]any) {
	if id == nil {
		id = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(envelope{
		JSONRPC: "2.0",
		ID:      id,
		Error:   envelopeError{Code: code, Message: message, Data: data},
	})
}

// writeGovernanceBlock writes a governance_blocked envelope for a failure
// that has no associated Decision (e.g. an invalid credential) -- the
// external shape is identical to a real policy block, so the response
// never leaks whether the failure was authentication or policy.
func writeGovernanceBlock(w http.ResponseWriter, id json.RawMessage, reason string) {
	writeErrorEnvelope(w, id, codeGovernanceBlocked,
		"Request blocked by governance policy: "+reason,
		map[string]any{"action": "block_request"},
	)
}

// writeDecisionBlock writes a governance_blocked envelope for a real
// pipeline Decision, naming every guardrail that did not allow the
// message and the stage (request/response) it was blocked at.
func writeDecisionBlock(w http.ResponseWriter, id json.RawMessage, decision service.Decision, stage string) {
	triggered := make([]string, 0, len(decision.Results))
	for _, r := range decision.Results {
		if r.Outcome.Kind != guardrail.OutcomeAllow {
			triggered = append(triggered, r.GuardrailType)
		}
	}
	action := "block_request"
	if stage == "response" {
		action = "block_response"
	}
	writeErrorEnvelope(w, id, codeGovernanceBlocked,
		"Request blocked by governance policy: "+decision.Reason,
		map[string]any{
			"decision_id":          decision.Audit.ID,
			"action":               action,
			"guardrails_triggered": triggered,
		},
	)
}
