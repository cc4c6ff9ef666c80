// Package instrumentation provides OpenTelemetry instrumentation for the
// openproject-mcp server.
//
// It covers:
//   - OpenTelemetry metrics for MCP tool invocations, OpenProject API calls
//     and (for the HTTP transport) incoming HTTP requests
//   - Distributed tracing for tool invocations and backend calls
//   - Prometheus metrics export via /metrics on a dedicated port
//   - Audit logging of tool invocations
//
// # Metrics
//
//   - http_requests_total, http_request_duration_seconds
//   - openproject_api_operations_total, openproject_api_operation_duration_seconds
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// # Tracing
//
// Spans are created for MCP tool invocations (tool.<name>) and backend calls
// (openproject.<operation>). Outgoing HTTP requests additionally get client
// spans from otelhttp.
//
// # Configuration
//
// LoadConfig reads these variables through the same config.Loader as the
// OpenProject settings, so they may also come from the env file:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: openproject-mcp)
//   - METRICS_DETAILED_LABELS (default: false)
//   - AUDIT_LOGGING_ENABLED (default: true), AUDIT_LOGGING_INCLUDE_ARGUMENTS
//
// # Example Usage
//
//	loader, err := config.NewLoader(".env")
//	...
//	cfg, err := instrumentation.LoadConfig(loader)
//	...
//	provider, err := instrumentation.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordToolInvocation(ctx, "get_ai_tasks", instrumentation.StatusSuccess, time.Since(start))
package instrumentation
