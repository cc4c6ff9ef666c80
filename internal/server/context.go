package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/teemow/openproject-mcp/internal/instrumentation"
	"github.com/teemow/openproject-mcp/internal/openproject"
)

// ServerContext holds the dependencies shared by every tool handler.
type ServerContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	client      *openproject.Client
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	logger      *slog.Logger
	version     string
	mu          sync.RWMutex
	shutdown    bool
}

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithMetrics sets the metrics recorder used by instrumented handlers.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(sc *ServerContext) {
		sc.metrics = m
	}
}

// WithAuditLogger sets the audit logger used by instrumented handlers.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) {
		sc.auditLogger = al
	}
}

// WithLogger sets the logger handed to tool handlers.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) {
		sc.logger = logger
	}
}

// WithVersion sets the version reported by the detailed health endpoint.
func WithVersion(version string) Option {
	return func(sc *ServerContext) {
		sc.version = version
	}
}

// NewServerContext creates a server context around an OpenProject client.
// The client is owned by the context and closed on Shutdown.
func NewServerContext(ctx context.Context, client *openproject.Client, opts ...Option) (*ServerContext, error) {
	if client == nil {
		return nil, errors.New("openproject client is required")
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		client: client,
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.metrics == nil {
		sc.metrics = &instrumentation.Metrics{}
	}
	if sc.logger == nil {
		sc.logger = slog.Default()
	}
	if sc.auditLogger == nil {
		sc.auditLogger = instrumentation.NewAuditLogger(sc.logger)
	}
	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Client returns the OpenProject client.
func (sc *ServerContext) Client() *openproject.Client {
	return sc.client
}

// Metrics returns the metrics recorder. It is never nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// Logger returns the server logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Version returns the server version.
func (sc *ServerContext) Version() string {
	return sc.version
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context and releases the client's idle
// connections. Calling it more than once is a no-op.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return sc.client.Close()
}
