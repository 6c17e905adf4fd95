package governance

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cerberusgate/cerberusgate/internal/port/inbound"
)

// Transport serves the governance proxy endpoint plus /health and
// /metrics on a single listener, generalizing the teacher's HTTP
// Streamable Transport from single-session MCP stdio bridging to the
// stateless per-request governance flow of §4.8.
type Transport struct {
	handler *Handler
	addr    string
	server  *http.Server
	logger  *slog.Logger
	reg     *prometheus.Registry
}

// Option configures a Transport.
type Option func(*Transport)

// WithAddr sets the listen address. Default "127.0.0.1:8080".
func WithAddr(addr string) Option {
	return func(t *Transport) { t.addr = addr }
}

// WithLogger sets the transport's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithRegistry sets the Prometheus registry served at /metrics. If not
// set, /metrics serves the default registry (promhttp.Handler()), where the
// decision engine and upstream client register their metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(t *Transport) { t.reg = reg }
}

// NewTransport builds a Transport serving handler.
func NewTransport(handler *Handler, opts ...Option) *Transport {
	t := &Transport{
		handler: handler,
		addr:    "127.0.0.1:8080",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins accepting HTTP connections. Blocks until ctx is cancelled
// or the server fails.
func (t *Transport) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(ProxyPathPrefix, t.handler)
	mux.Handle("/health", healthHandler())
	metrics := promhttp.Handler()
	if t.reg != nil {
		metrics = promhttp.HandlerFor(t.reg, promhttp.HandlerOpts{Registry: t.reg})
	}
	mux.Handle("/metrics", metrics)

	t.server = &http.Server{
		Addr:    t.addr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting governance proxy HTTP server", "addr", t.addr)
		err := t.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down governance proxy HTTP server")
		return t.Close()
	case err := <-errCh:
		return err
	}
}

// Close gracefully shuts the server down.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.server.Shutdown(shutdownCtx); err != nil {
		t.logger.Error("error during governance proxy HTTP server shutdown", "error", err)
		return err
	}
	return nil
}

func healthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
}

var _ inbound.ProxyService = (*Transport)(nil)
