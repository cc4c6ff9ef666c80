package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/openproject-mcp/internal/config"
	"github.com/teemow/openproject-mcp/internal/instrumentation"
	"github.com/teemow/openproject-mcp/internal/logging"
	"github.com/teemow/openproject-mcp/internal/openproject"
	"github.com/teemow/openproject-mcp/internal/server"
	"github.com/teemow/openproject-mcp/internal/tools/openproject_tools"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"

	shutdownTimeout = 30 * time.Second
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// serveOptions collects the serve command's flags.
type serveOptions struct {
	Transport        string
	HTTPAddr         string
	EnvFile          string
	Debug            bool
	DisableStreaming bool
	Metrics          MetricsConfig
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server exposing OpenProject tasks to
AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport on /mcp, with /healthz and /readyz

Configuration:
  OPENPROJECT_URL            Base URL of the OpenProject instance
  OPENPROJECT_API_KEY        API key (sent as basic auth password for user "apikey")
  OPENPROJECT_QUERY_ID_BUGS  Saved query backing the bugs column
  OPENPROJECT_QUERY_ID_READY Saved query backing the ready column
  OPENPROJECT_AI_DEV_FIELD   Custom field flagging tasks for AI development

  Values are read from the environment first, then from the env file. The env
  file may also carry the instrumentation variables (METRICS_EXPORTER,
  TRACING_EXPORTER, OTEL_*, AUDIT_LOGGING_*).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateTransport(opts.Transport); err != nil {
				return err
			}
			loadMetricsEnvVars(cmd, &opts.Metrics)
			return runServe(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&opts.Transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&opts.HTTPAddr, "http-addr", server.DefaultHTTPAddr, "HTTP server address (for streamable-http transport)")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", config.DefaultEnvFile, "Dotenv file with OPENPROJECT_* settings (ignored if missing)")
	cmd.Flags().BoolVar(&opts.DisableStreaming, "disable-streaming", false, "Answer with plain JSON instead of SSE streams (for streamable-http transport)")
	cmd.Flags().BoolVar(&opts.Metrics.Enabled, "metrics-enabled", true, "Start the Prometheus metrics server (not used with stdio transport)")
	cmd.Flags().StringVar(&opts.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address")

	return cmd
}

func validateTransport(transport string) error {
	switch transport {
	case transportStdio, transportStreamableHTTP:
		return nil
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: %s, %s)", transport, transportStdio, transportStreamableHTTP)
	}
}

// loadMetricsEnvVars applies METRICS_ENABLED and METRICS_ADDR for flags that
// were not set explicitly.
func loadMetricsEnvVars(cmd *cobra.Command, cfg *MetricsConfig) {
	if !cmd.Flags().Changed("metrics-enabled") {
		switch os.Getenv("METRICS_ENABLED") {
		case "true":
			cfg.Enabled = true
		case "false":
			cfg.Enabled = false
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			cfg.Addr = addr
		}
	}
}

// newLogger returns the process logger. Logs always go to w (stderr in
// practice) since stdout carries the stdio protocol.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	return logging.New(w, debug).With(slog.String("component", "openproject-mcp"))
}

func runServe(opts serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(os.Stderr, opts.Debug)
	slog.SetDefault(logger)

	loader, err := config.NewLoader(opts.EnvFile)
	if err != nil {
		return err
	}
	settings, err := loader.Settings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if settings.HasAPIKey() {
		logger.Info("loaded settings",
			"url", settings.URL,
			"api_key", logging.SanitizeToken(settings.APIKey))
	} else {
		logger.Warn("OPENPROJECT_API_KEY is not set, OpenProject will reject requests",
			"url", settings.URL,
			"api_key", logging.SanitizeToken(settings.APIKey))
	}

	// Initialize instrumentation provider
	instrConfig, err := instrumentation.LoadConfig(loader)
	if err != nil {
		return err
	}
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	clientOpts := []openproject.Option{openproject.WithLogger(logger)}
	contextOpts := []server.Option{server.WithLogger(logger), server.WithVersion(version)}
	if provider.Enabled() {
		clientOpts = append(clientOpts, openproject.WithMetrics(provider.Metrics()))
		contextOpts = append(contextOpts,
			server.WithMetrics(provider.Metrics()),
			server.WithAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)))
	}

	client := openproject.NewClient(settings, clientOpts...)
	serverContext, err := server.NewServerContext(shutdownCtx, client, contextOpts...)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Error("error during server context shutdown", logging.Err(err))
		}
	}()

	mcpSrv := newMCPServer()
	if err := registerAllTools(mcpSrv, serverContext); err != nil {
		return err
	}

	switch opts.Transport {
	case transportStdio:
		return runStdioServer(shutdownCtx, mcpSrv, logger)
	case transportStreamableHTTP:
		var metricsServer *server.MetricsServer
		if opts.Metrics.Enabled && provider.Enabled() && provider.PrometheusEnabled() {
			metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
				Addr:                    opts.Metrics.Addr,
				InstrumentationProvider: provider,
			})
			if err != nil {
				return fmt.Errorf("failed to create metrics server: %w", err)
			}
		}

		httpServer, err := server.NewHTTPServer(mcpSrv, serverContext, server.HTTPServerConfig{
			Addr:             opts.HTTPAddr,
			DisableStreaming: opts.DisableStreaming,
		})
		if err != nil {
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}
		return runStreamableHTTPServer(shutdownCtx, httpServer, metricsServer, logger)
	default:
		return validateTransport(opts.Transport)
	}
}

func newMCPServer() *mcpserver.MCPServer {
	return mcpserver.NewMCPServer("openproject-mcp", version,
		mcpserver.WithToolCapabilities(true),
	)
}

// registerAllTools registers all MCP tools
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := openproject_tools.RegisterOpenProjectTools(mcpSrv, sc); err != nil {
		return fmt.Errorf("failed to register OpenProject tools: %w", err)
	}
	return nil
}

// runStdioServer serves until stdin is closed or ctx is cancelled.
func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, logger *slog.Logger) error {
	stdio := mcpserver.NewStdioServer(mcpSrv)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	logger.Debug("serving MCP on stdio")
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, httpServer *server.HTTPServer, metricsServer *server.MetricsServer, logger *slog.Logger) error {
	serverDone := make(chan error, 2)
	go func() {
		serverDone <- httpServer.Start()
	}()
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil {
				serverDone <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
	case err := <-serverDone:
		if err != nil {
			runErr = fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("error shutting down HTTP server: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("error shutting down metrics server: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}
