// Package common provides shared utilities for MCP tool implementations:
// argument coercion (IntArg) and the instrumentation wrapper that gives every
// tool handler a span, metrics and an audit log entry.
package common
