package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_ForwardSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Organisation-ID") != "org-1" {
			t.Errorf("expected gateway-stamped org header, got %q", r.Header.Get("X-Organisation-ID"))
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	defer c.Close()

	result := c.Forward(context.Background(), Request{
		UpstreamURL:    srv.URL,
		Path:           "/tools/call",
		Method:         http.MethodPost,
		Body:           []byte(`{"ok":true}`),
		OrganisationID: "org-1",
		WorkspaceID:    "ws-1",
		AgentID:        "agent-1",
	})

	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.ErrorMessage)
	}
	if result.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", result.Status)
	}
	if string(result.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", result.Body)
	}
}

func TestClient_ForwardEmptyUpstreamURL(t *testing.T) {
	c := New(DefaultConfig())
	defer c.Close()

	result := c.Forward(context.Background(), Request{Path: "/x", Method: http.MethodGet})
	if result.Success {
		t.Fatal("expected failure for an empty upstream URL")
	}
	if result.ErrorMessage == "" {
		t.Fatal("expected an error message")
	}
}

func TestClient_ForwardConnectFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	c := New(cfg)
	defer c.Close()

	result := c.Forward(context.Background(), Request{
		UpstreamURL: "http://127.0.0.1:1", // nothing listens here
		Path:        "/x",
		Method:      http.MethodGet,
	})
	if result.Success {
		t.Fatal("expected failure for an unreachable upstream")
	}
}

func TestClient_DropsHopByHopAndUnauthorizedHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("expected Authorization header to be dropped by default")
		}
		if r.Header.Get("Connection") != "" {
			t.Error("expected hop-by-hop Connection header to be dropped")
		}
		if r.Header.Get("Accept") != "text/plain" {
			t.Errorf("expected allowlisted Accept header to be forwarded, got %q", r.Header.Get("Accept"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	defer c.Close()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer secret")
	headers.Set("Connection", "keep-alive")
	headers.Set("Accept", "text/plain")
	headers.Set("X-Not-Allowlisted", "nope")

	result := c.Forward(context.Background(), Request{
		UpstreamURL:   srv.URL,
		Path:          "/",
		Method:        http.MethodGet,
		ClientHeaders: headers,
	})
	if !result.Success {
		t.Fatalf("expected success, got %s", result.ErrorMessage)
	}
}

func TestClient_ForwardAllHeadersModeSkipsAllowlist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Custom") != "value" {
			t.Error("expected non-allowlisted header forwarded under forward-all mode")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.ForwardAllHeaders = true
	c := New(cfg)
	defer c.Close()

	headers := http.Header{}
	headers.Set("X-Custom", "value")

	result := c.Forward(context.Background(), Request{
		UpstreamURL:   srv.URL,
		Path:          "/",
		Method:        http.MethodGet,
		ClientHeaders: headers,
	})
	if !result.Success {
		t.Fatalf("expected success, got %s", result.ErrorMessage)
	}
}

func TestClient_ForwardNonJSONResponseIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := New(DefaultConfig())
	defer c.Close()

	result := c.Forward(context.Background(), Request{
		UpstreamURL: srv.URL,
		Path:        "/",
		Method:      http.MethodGet,
	})
	if result.Success {
		t.Fatal("expected a non-JSON upstream body to be reported as a failure")
	}
	if result.Status != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", result.Status)
	}
}

func TestBuildUpstreamURL(t *testing.T) {
	cases := []struct{ base, path, query, want string }{
		{"http://host/", "/a/b", "", "http://host/a/b"},
		{"http://host", "a/b", "", "http://host/a/b"},
		{"http://host", "/a", "q=1", "http://host/a?q=1"},
	}
	for _, c := range cases {
		if got := buildUpstreamURL(c.base, c.path, c.query); got != c.want {
			t.Errorf("buildUpstreamURL(%q,%q,%q) = %q, want %q", c.base, c.path, c.query, got, c.want)
		}
	}
}
