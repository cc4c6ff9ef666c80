// Package logging provides structured logging utilities for openproject-mcp.
//
// All logging goes through log/slog with a shared set of attribute keys so
// that tool, service and task identifiers look the same in every log line.
//
// # Usage Patterns
//
//	logger := logging.WithTool(slog.Default(), "get_task")
//	logger.Info("fetched task", logging.TaskID(42), logging.Status(logging.StatusSuccess))
//
// The OpenProject API key is never logged. Use SanitizeToken when its
// presence needs to be reported:
//
//	logger.Warn("API key not configured", "api_key", logging.SanitizeToken(key))
package logging
