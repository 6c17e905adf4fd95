// Package governance provides the inbound HTTP adapter for the governance
// proxy endpoint: authenticate, run the request-leg decision, forward
// upstream, run the response-leg decision, and return a single JSON-RPC
// shaped body with HTTP 200 regardless of outcome.
package governance

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cerberusgate/cerberusgate/internal/adapter/outbound/upstream"
	"github.com/cerberusgate/cerberusgate/internal/domain/guardrail"
	"github.com/cerberusgate/cerberusgate/internal/service"
	"github.com/cerberusgate/cerberusgate/pkg/mcp"
)

// ProxyPathPrefix is the mount point for the proxy endpoint; the
// remainder of the path is forwarded verbatim to the upstream.
const ProxyPathPrefix = "/governance-plane/api/v1/proxy/"

// RequestIDHeader is the inbound header carrying a caller-supplied
// correlation id; a fresh one is generated when absent.
const RequestIDHeader = "X-Request-ID"

const sessionIDHeader = "Mcp-Session-Id"

// Handler serves the governance proxy endpoint.
type Handler struct {
	credentials *service.CredentialResolver
	decisions   *service.DecisionEngine
	upstream    *upstream.Client
	logger      *slog.Logger
}

// NewHandler wires a proxy Handler from its collaborators.
func NewHandler(credentials *service.CredentialResolver, decisions *service.DecisionEngine, upstreamClient *upstream.Client, logger *slog.Logger) *Handler {
	return &Handler{credentials: credentials, decisions: decisions, upstream: upstreamClient, logger: logger}
}

// ServeHTTP implements the full proxy flow documented in §4.8: resolve
// credential, evaluate the request leg, forward upstream, evaluate the
// response leg, and answer with HTTP 200. An OPTIONS request is answered
// as a CORS preflight instead, before any credential check.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeCORSPreflight(w)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, ProxyPathPrefix)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	agent, err := h.credentials.Resolve(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		writeGovernanceBlock(w, nil, "invalid credential")
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeErrorEnvelope(w, nil, codeParseError, "Parse error: "+err.Error(), nil)
		return
	}

	rawID := extractID(body)
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	sessionID := r.Header.Get(sessionIDHeader)

	// The request leg always gets a decision and an audit record, even for
	// a bodiless request (GET/HEAD, or a DELETE with no body):
	// WrapMessageTolerant wraps an absent or malformed body as an empty
	// request rather than leaving nothing to evaluate.
	message := mcp.WrapMessageTolerant(body, mcp.ClientToServer)

	forwardBody := body
	requestDecision := h.decisions.Evaluate(r.Context(), message, agent, mcp.ClientToServer, requestID, sessionID)

	if requestDecision.Kind == guardrail.OutcomeBlock {
		writeDecisionBlock(w, rawID, requestDecision, "request")
		return
	}
	if requestDecision.Kind == guardrail.OutcomeModify && requestDecision.Message != nil {
		forwardBody = requestDecision.Message.Raw
	}

	result := h.upstream.Forward(r.Context(), upstream.Request{
		UpstreamURL:    agent.UpstreamURL,
		Path:           path,
		Method:         r.Method,
		Query:          r.URL.RawQuery,
		Body:           forwardBody,
		ClientHeaders:  r.Header,
		ClientIP:       clientIP(r),
		UserAgent:      r.Header.Get("User-Agent"),
		RequestID:      requestID,
		OrganisationID: agent.OrganisationID,
		WorkspaceID:    agent.WorkspaceID,
		AgentID:        agent.AgentID,
	})

	if !result.Success {
		writeErrorEnvelope(w, rawID, codeUpstreamError, "Upstream error: "+result.ErrorMessage, nil)
		return
	}

	finalBody := result.Body
	var responseDecision service.Decision
	haveResponseDecision := false

	// The response leg runs the same way whenever there's a body to judge:
	// WrapMessageTolerant falls back to treating the whole body as the
	// decision's result when it isn't JSON-RPC shaped, so a valid-JSON-but-
	// unshaped upstream reply still gets evaluated and audited instead of
	// silently passing through.
	if len(result.Body) > 0 {
		respMessage := mcp.WrapMessageTolerant(result.Body, mcp.ServerToClient)
		responseDecision = h.decisions.Evaluate(r.Context(), respMessage, agent, mcp.ServerToClient, requestID, sessionID)
		haveResponseDecision = true

		if responseDecision.Kind == guardrail.OutcomeBlock {
			writeDecisionBlock(w, rawID, responseDecision, "response")
			return
		}
		if responseDecision.Kind == guardrail.OutcomeModify && responseDecision.Message != nil {
			finalBody = responseDecision.Message.Raw
		}
	}

	for key, values := range result.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("X-Request-Decision-ID", requestDecision.Audit.ID)
	if haveResponseDecision {
		w.Header().Set("X-Response-Decision-ID", responseDecision.Audit.ID)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(finalBody)
}

// readBody reads the request body, tolerating its absence for the
// methods where a body is optional and validating JSON syntax wherever
// one is present.
func readBody(r *http.Request) ([]byte, error) {
	method := r.Method
	if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
		return nil, nil
	}
	if method == http.MethodDelete {
		length, _ := strconv.Atoi(r.Header.Get("Content-Length"))
		if length <= 0 {
			return nil, nil
		}
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, errors.New("invalid JSON")
	}
	return body, nil
}

func extractID(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	var idCheck struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(body, &idCheck); err != nil {
		return nil
	}
	return idCheck.ID
}

// clientIP extracts the first address from X-Forwarded-For, falling back
// to the socket peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeCORSPreflight(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Mcp-Session-Id, X-Request-ID")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}
