package governance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	outboundgov "github.com/cerberusgate/cerberusgate/internal/adapter/outbound/governance"
	"github.com/cerberusgate/cerberusgate/internal/adapter/outbound/upstream"
	"github.com/cerberusgate/cerberusgate/internal/domain/auth"
	"github.com/cerberusgate/cerberusgate/internal/domain/governance"
	"github.com/cerberusgate/cerberusgate/internal/domain/guardrail"
	"github.com/cerberusgate/cerberusgate/internal/service"
)

type stubCredentialStore struct {
	cred *governance.AgentCredential
	ws   *governance.Workspace
}

func (s *stubCredentialStore) FindByTokenHash(ctx context.Context, tokenHash string) (*governance.AgentCredential, *governance.Workspace, error) {
	if s.cred == nil || s.cred.TokenHash != tokenHash {
		return nil, nil, governance.ErrCredentialNotFound
	}
	return s.cred, s.ws, nil
}

func (s *stubCredentialStore) Credentials(ctx context.Context) ([]governance.AgentCredential, error) {
	if s.cred == nil {
		return nil, nil
	}
	return []governance.AgentCredential{*s.cred}, nil
}

func (s *stubCredentialStore) BumpUsage(ctx context.Context, credentialID string) error { return nil }

type stubPolicyStore struct {
	policies []governance.Policy
}

func (s *stubPolicyStore) ListForScope(ctx context.Context, organisationID, workspaceID, agentID string) ([]governance.Policy, error) {
	return s.policies, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T, upstreamURL string, policies []governance.Policy) *Handler {
	t.Helper()

	credStore := &stubCredentialStore{
		cred: &governance.AgentCredential{ID: "agent-1", WorkspaceID: "ws-1", Name: "agent-one", TokenHash: auth.HashKey("test-token"), Active: true},
		ws:   &governance.Workspace{ID: "ws-1", OrganisationID: "org-1", Active: true, UpstreamURL: upstreamURL},
	}
	credentials := service.NewCredentialResolver(credStore, testLogger())

	registry := guardrail.NewRegistry()
	registry.Register("rbac", guardrail.NewRBAC)
	pipeline := service.NewPipeline(registry)

	policyResolver := service.NewPolicyResolver(&stubPolicyStore{policies: policies}, nil)
	catalog := outboundgov.NewStaticCatalog()
	sink := outboundgov.NewRingAuditSink()

	decisions := service.NewDecisionEngine(policyResolver, catalog, pipeline, sink, testLogger())
	upstreamClient := upstream.New(upstream.DefaultConfig())

	return NewHandler(credentials, decisions, upstreamClient, testLogger())
}

func TestHandler_ForwardsAllowedRequest(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"ok"}]}}`))
	}))
	defer upstreamSrv.Close()

	h := newTestHandler(t, upstreamSrv.URL, nil)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"filesystem/read","arguments":{}}}`
	req := httptest.NewRequest(http.MethodPost, ProxyPathPrefix+"mcp", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
	if rec.Header().Get("X-Request-Decision-ID") == "" {
		t.Fatal("expected X-Request-Decision-ID header")
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("expected pass-through body, got %s", rec.Body.String())
	}
}

func TestHandler_RejectsInvalidCredential(t *testing.T) {
	h := newTestHandler(t, "http://unused", nil)

	req := httptest.NewRequest(http.MethodPost, ProxyPathPrefix+"mcp", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 (in-band error), got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "-32001") {
		t.Fatalf("expected governance_blocked code, got %s", rec.Body.String())
	}
}

func TestHandler_BlocksDeniedTool(t *testing.T) {
	policies := []governance.Policy{
		{ID: "p1", GuardrailType: "rbac", Enabled: true, Config: map[string]interface{}{"denied_tools": []interface{}{"filesystem/write"}}},
	}
	h := newTestHandler(t, "http://unused", policies)

	body := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"filesystem/write","arguments":{}}}`
	req := httptest.NewRequest(http.MethodPost, ProxyPathPrefix+"mcp", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "-32001") {
		t.Fatalf("expected governance_blocked code, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "rbac") {
		t.Fatalf("expected rbac named as the triggered guardrail, got %s", rec.Body.String())
	}
}

func TestHandler_ParseErrorOnMalformedJSON(t *testing.T) {
	h := newTestHandler(t, "http://unused", nil)

	req := httptest.NewRequest(http.MethodPost, ProxyPathPrefix+"mcp", strings.NewReader(`not json`))
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "-32700") {
		t.Fatalf("expected parse_error code, got %s", rec.Body.String())
	}
}

func TestHandler_UpstreamErrorOnUnreachableUpstream(t *testing.T) {
	h := newTestHandler(t, "http://127.0.0.1:1", nil)

	body := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"filesystem/read","arguments":{}}}`
	req := httptest.NewRequest(http.MethodPost, ProxyPathPrefix+"mcp", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "-32003") {
		t.Fatalf("expected upstream_error code, got %s", rec.Body.String())
	}
}

func TestHandler_RequestDecisionRunsForBodilessRequest(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":null,"result":{}}`))
	}))
	defer upstreamSrv.Close()

	h := newTestHandler(t, upstreamSrv.URL, nil)

	req := httptest.NewRequest(http.MethodGet, ProxyPathPrefix+"mcp", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Request-Decision-ID") == "" {
		t.Fatal("expected the request leg to produce a decision even for a bodiless request")
	}
}

func TestHandler_ResponseDecisionRunsForNonJSONRPCShapedBody(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","data":[1,2,3]}`))
	}))
	defer upstreamSrv.Close()

	h := newTestHandler(t, upstreamSrv.URL, nil)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"filesystem/read","arguments":{}}}`
	req := httptest.NewRequest(http.MethodPost, ProxyPathPrefix+"mcp", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer test-token")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Response-Decision-ID") == "" {
		t.Fatal("expected the response leg to produce a decision even for a non-JSON-RPC-shaped upstream body")
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("expected pass-through of the non-JSON-RPC-shaped body, got %s", rec.Body.String())
	}
}

func TestHandler_OptionsIsCORSPreflight(t *testing.T) {
	h := newTestHandler(t, "http://unused", nil)

	req := httptest.NewRequest(http.MethodOptions, ProxyPathPrefix+"mcp", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatal("expected CORS headers on preflight")
	}
}
