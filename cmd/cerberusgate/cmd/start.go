// Package cmd provides the CLI commands for Cerberus Gate.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	inboundgov "github.com/cerberusgate/cerberusgate/internal/adapter/inbound/governance"
	outboundgov "github.com/cerberusgate/cerberusgate/internal/adapter/outbound/governance"
	"github.com/cerberusgate/cerberusgate/internal/adapter/outbound/upstream"
	"github.com/cerberusgate/cerberusgate/internal/config"
	"github.com/cerberusgate/cerberusgate/internal/domain/guardrail"
	"github.com/cerberusgate/cerberusgate/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the governance gateway",
	Long: `Start the Cerberus Gate governance gateway.

The gateway authenticates each agent's bearer credential, resolves the
organisation/workspace/agent policy set, runs the fixed RBAC -> PII ->
content-filter -> rate-limit guardrail pipeline against both the request
and the upstream's response, and forwards allowed traffic to the
workspace's configured upstream MCP server.

Examples:
  # Start with config file settings
  cerberusgate start

  # Start with a specific config file
  cerberusgate --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, relaxed validation)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	dbPath := dbFilePath
	if dbPath == "" {
		dbPath = os.Getenv("CERBERUS_GATE_DB_PATH")
	}
	if dbPath == "" {
		dbPath = cfg.Governance.DBPath
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, dbPath, logger); err != nil {
		return err
	}

	logger.Info("cerberusgate stopped")
	return nil
}

// run wires every governance adapter together and blocks on the HTTP
// transport until ctx is cancelled.
func run(ctx context.Context, cfg *config.OSSConfig, dbPath string, logger *slog.Logger) error {
	startTime := time.Now().UTC()

	if cfg.DevMode {
		logger.Warn("dev mode enabled: relaxed validation, verbose logging -- do not use in production")
	}

	store, err := outboundgov.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open governance database: %w", err)
	}
	defer func() { _ = store.Close() }()
	logger.Info("governance database opened", "path", dbPath)

	cacheTTL, err := time.ParseDuration(cfg.Governance.PolicyCacheTTL)
	if err != nil {
		cacheTTL = 5 * time.Minute
		logger.Warn("invalid governance.policy_cache_ttl, using default",
			"value", cfg.Governance.PolicyCacheTTL, "default", "5m")
	}
	policyCache := outboundgov.NewMemoryPolicyCache(cacheTTL)
	catalog := outboundgov.NewStaticCatalog()
	rateLimitStore := outboundgov.NewMemoryRateLimitStore()

	auditCapacity := cfg.Audit.BufferSize
	if auditCapacity <= 0 {
		auditCapacity = 1000
	}
	auditSink, err := buildAuditSink(cfg, auditCapacity, logger)
	if err != nil {
		return fmt.Errorf("failed to create audit sink: %w", err)
	}

	registry := guardrail.DefaultRegistry(rateLimitStore)
	pipeline := service.NewPipeline(registry)

	credentials := service.NewCredentialResolver(store, logger)
	policyResolver := service.NewPolicyResolver(store, policyCache)
	decisions := service.NewDecisionEngine(policyResolver, catalog, pipeline, auditSink, logger)

	upstreamCfg := upstream.DefaultConfig()
	if timeout, err := time.ParseDuration(cfg.Governance.UpstreamTimeout); err == nil {
		upstreamCfg.Timeout = timeout
	} else {
		logger.Warn("invalid governance.upstream_timeout, using default",
			"value", cfg.Governance.UpstreamTimeout, "default", upstreamCfg.Timeout)
	}
	upstreamCfg.MaxRetries = cfg.Governance.UpstreamMaxRetries
	upstreamCfg.ForwardAuthorization = cfg.Governance.ForwardAuthorization
	upstreamCfg.ForwardAllHeaders = cfg.Governance.ForwardAllHeaders
	upstreamClient := upstream.New(upstreamCfg)
	defer upstreamClient.Close()

	handler := inboundgov.NewHandler(credentials, decisions, upstreamClient, logger)
	transport := inboundgov.NewTransport(handler,
		inboundgov.WithAddr(cfg.Server.HTTPAddr),
		inboundgov.WithLogger(logger),
	)

	printBanner(Version, cfg.Server.HTTPAddr, cfg.DevMode, startTime)

	logger.Info("cerberusgate starting",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"http_addr", cfg.Server.HTTPAddr,
		"governance_db", dbPath,
	)

	return transport.Start(ctx)
}

// buildAuditSink builds the best-effort AuditSink the decision engine emits
// every decision through, writing to stdout or an optional file per the
// same audit.output convention the gateway's YAML config has always used.
func buildAuditSink(cfg *config.OSSConfig, capacity int, logger *slog.Logger) (*outboundgov.RingAuditSink, error) {
	switch {
	case cfg.Audit.Output == "" || cfg.Audit.Output == "stdout":
		logger.Debug("audit output: stdout", "buffer_size", capacity)
		return outboundgov.NewRingAuditSinkWithWriter(os.Stdout, capacity), nil

	case strings.HasPrefix(cfg.Audit.Output, "file://"):
		path := parseFileURI(cfg.Audit.Output)
		if path == "" {
			return nil, fmt.Errorf("invalid audit file URI: %s", cfg.Audit.Output)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit file %s: %w", path, err)
		}
		logger.Debug("audit output: file", "path", path, "buffer_size", capacity)
		return outboundgov.NewRingAuditSinkWithWriter(f, capacity), nil

	default:
		return nil, fmt.Errorf("invalid audit output: %s (must be 'stdout' or 'file://path')", cfg.Audit.Output)
	}
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a formatted startup banner to stderr.
func printBanner(version, httpAddr string, devMode bool, startTime time.Time) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		green  = "\033[32m"
		yellow = "\033[33m"
		dim    = "\033[2m"
	)

	proxyURL := fmt.Sprintf("http://localhost%s%s", httpAddr, inboundgov.ProxyPathPrefix)
	if !strings.HasPrefix(httpAddr, ":") {
		proxyURL = fmt.Sprintf("http://%s%s", httpAddr, inboundgov.ProxyPathPrefix)
	}

	modeStr := green + "production" + reset
	if devMode {
		modeStr = yellow + "development" + reset
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%s CerberusGate %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Proxy:", proxyURL)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %-14s %s\n", "Started:", startTime.Format(time.RFC3339))
	fmt.Fprintf(os.Stderr, "  %s─────────────────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "\n")
}

// pidFilePath returns the standard location for the CerberusGate PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".cerberusgate", "server.pid")
	}
	return filepath.Join(os.TempDir(), "cerberusgate-server.pid")
}

// writePIDFile writes the current process PID to the given path, creating
// parent directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
