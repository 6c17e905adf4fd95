// Package upstream provides the outbound HTTP client that forwards a
// governed request to an MCP server's configured upstream URL.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/cerberusgate/cerberusgate/internal/adapter/outbound/upstream")

// latencyHistogram records upstream call latency labelled by outcome
// (success/failure), mirroring the decision engine's labelled-counter
// convention for its own observability surface.
var latencyHistogram = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "cerberusgate_upstream_latency_seconds",
		Help:    "Upstream call latency in seconds, labelled by outcome.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(latencyHistogram)
}

// hopByHopHeaders must never be forwarded in either direction: they are
// meaningful only for a single transport-level connection (RFC 2616
// Section 13.5.1).
var hopByHopHeaders = map[string]bool{
	"host":              true,
	"connection":        true,
	"keep-alive":        true,
	"transfer-encoding": true,
	"te":                true,
	"trailer":           true,
	"upgrade":           true,
	"proxy-authorization": true,
	"proxy-connection":  true,
}

// responseHeadersToDrop are recomputed by the transport writing the final
// response and must not be copied verbatim from the upstream reply.
var responseHeadersToDrop = map[string]bool{
	"content-encoding": true,
	"content-length":   true,
}

// Config holds the per-process settings that govern every call made
// through a Client. Defaults mirror the proxy's documented environment
// variables.
type Config struct {
	Timeout                 time.Duration
	MaxRetries              int
	MaxKeepaliveConnections int
	MaxConnections          int
	ForwardAuthorization    bool
	RequestIDHeader         string
	ForwardedForHeader      string
	ForwardAllHeaders       bool
	BlockedHeaders          []string
	ForwardHeaders          []string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:                 30 * time.Second,
		MaxRetries:              2,
		MaxKeepaliveConnections: 20,
		MaxConnections:          100,
		ForwardAuthorization:    false,
		RequestIDHeader:         "X-Gateway-Request-ID",
		ForwardedForHeader:      "X-Forwarded-For",
		ForwardAllHeaders:       false,
		ForwardHeaders:          []string{"accept", "accept-language", "content-type"},
	}
}

// Request is everything the client needs to build and execute one
// upstream call.
type Request struct {
	UpstreamURL    string
	Path           string
	Method         string
	Query          string
	Body           []byte
	ClientHeaders  http.Header
	ClientIP       string
	UserAgent      string
	RequestID      string
	OrganisationID string
	WorkspaceID    string
	AgentID        string
}

// Result is the outcome of one upstream call. Success is mutually
// exclusive with a non-empty ErrorMessage; Go has no tagged union so the
// two fields stand in for UpstreamResult's Success/Failure variants.
type Result struct {
	Success        bool
	Status         int
	Body           []byte
	Headers        http.Header
	ResponseTimeMS float64
	ErrorMessage   string
}

// Client forwards governed requests to MCP server upstreams over a
// process-wide pooled *http.Client.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// New builds a Client with a connection pool sized per cfg.
func New(cfg Config) *Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: cfg.MaxKeepaliveConnections,
		MaxConnsPerHost:     cfg.MaxConnections,
		MaxIdleConns:        cfg.MaxConnections,
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		cfg: cfg,
	}
}

// Close releases pooled connections. Safe to call at process shutdown.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// Forward builds the outbound request per the URL-construction and
// header-discipline rules, executes it with bounded retries on connect
// and timeout failures only, and returns a Result that never itself
// errors -- failures are reported as Result.Success == false.
func (c *Client) Forward(ctx context.Context, req Request) Result {
	if strings.TrimSpace(req.UpstreamURL) == "" {
		return Result{ErrorMessage: "upstream url is not configured"}
	}

	url := buildUpstreamURL(req.UpstreamURL, req.Path, req.Query)

	ctx, span := tracer.Start(ctx, "upstream.forward", trace.WithAttributes(
		attribute.String("method", req.Method),
		attribute.String("path", req.Path),
	))
	defer span.End()

	start := time.Now()
	var lastErr error
	attempts := c.cfg.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := c.attempt(ctx, req, url)
		if err == nil {
			elapsed := time.Since(start)
			result.ResponseTimeMS = float64(elapsed.Microseconds()) / 1000.0
			span.SetAttributes(attribute.Int("status", result.Status), attribute.Int("attempt", attempt+1))
			c.observe(result.Success, elapsed)
			return result
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}

	span.SetStatus(codes.Error, lastErr.Error())
	elapsed := time.Since(start)
	c.observe(false, elapsed)
	return Result{
		ErrorMessage:   lastErr.Error(),
		ResponseTimeMS: float64(elapsed.Microseconds()) / 1000.0,
	}
}

func (c *Client) observe(success bool, elapsed time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	latencyHistogram.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (c *Client) attempt(ctx context.Context, req Request, url string) (Result, error) {
	var bodyReader io.Reader
	if bodyBearing(req.Method) && len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	outReq, err := http.NewRequestWithContext(ctx, req.Method, url, bodyReader)
	if err != nil {
		return Result{}, err
	}

	c.applyHeaders(outReq, req)

	resp, err := c.httpClient.Do(outReq)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	headers := make(http.Header, len(resp.Header))
	for k, v := range resp.Header {
		if responseHeadersToDrop[strings.ToLower(k)] {
			continue
		}
		headers[k] = v
	}

	if len(body) > 0 && !json.Valid(body) {
		return Result{
			Status:       http.StatusBadGateway,
			ErrorMessage: "upstream response body is not valid JSON",
		}, nil
	}

	return Result{
		Success: true,
		Status:  resp.StatusCode,
		Body:    body,
		Headers: headers,
	}, nil
}

// applyHeaders computes outbound headers in the documented order: filtered
// client headers first, then the fixed gateway-set headers last (so the
// gateway's own values always win on a collision).
func (c *Client) applyHeaders(outReq *http.Request, req Request) {
	blocked := make(map[string]bool, len(c.cfg.BlockedHeaders))
	for _, h := range c.cfg.BlockedHeaders {
		blocked[strings.ToLower(h)] = true
	}
	allowed := make(map[string]bool, len(c.cfg.ForwardHeaders))
	for _, h := range c.cfg.ForwardHeaders {
		allowed[strings.ToLower(h)] = true
	}

	for key, values := range req.ClientHeaders {
		lower := strings.ToLower(key)
		if hopByHopHeaders[lower] || blocked[lower] {
			continue
		}
		if lower == "authorization" && !c.cfg.ForwardAuthorization {
			continue
		}
		if !c.cfg.ForwardAllHeaders && !allowed[lower] {
			continue
		}
		for _, v := range values {
			outReq.Header.Add(key, v)
		}
	}

	outReq.Header.Set("Content-Type", "application/json")
	if req.RequestID != "" {
		outReq.Header.Set(c.cfg.RequestIDHeader, req.RequestID)
	}
	clientIP := req.ClientIP
	if clientIP == "" {
		clientIP = "unknown"
	}
	outReq.Header.Set(c.cfg.ForwardedForHeader, clientIP)
	outReq.Header.Set("X-Organisation-ID", req.OrganisationID)
	outReq.Header.Set("X-MCP-Server-Workspace-ID", req.WorkspaceID)
	outReq.Header.Set("X-Agent-Access-ID", req.AgentID)
	if req.UserAgent != "" {
		outReq.Header.Set("X-Original-User-Agent", req.UserAgent)
	}
}

func buildUpstreamURL(base, path, query string) string {
	trimmedBase := strings.TrimRight(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := trimmedBase + path
	if query != "" {
		url += "?" + query
	}
	return url
}

func bodyBearing(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

// retryable reports whether err represents a connect failure or timeout,
// the only two failure classes the upstream client retries. Application
// errors never reach here -- a non-2xx status is a successful round trip
// as far as http.Client is concerned, not a Go error.
func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
