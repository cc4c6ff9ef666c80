// Package server provides the MCP server context and the HTTP servers of
// openproject-mcp.
//
// # Key Components
//
// ServerContext carries the dependencies every tool handler needs: the
// OpenProject client, the metrics recorder and the audit logger. It is
// created once at startup and passed to tool registration; there is no
// package-level client.
//
// HTTPServer serves the MCP protocol over streamable HTTP at /mcp together
// with Kubernetes health endpoints:
//   - /healthz: liveness
//   - /readyz: readiness (503 while shutting down)
//   - /healthz/detailed: uptime, version and backend URL
//
// Every request through HTTPServer is recorded in http_requests_total.
//
// MetricsServer exposes Prometheus metrics on a separate port (default
// :9090) so operational metrics are not reachable through the MCP port.
package server
