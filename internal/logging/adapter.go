package logging

import (
	"fmt"
	"log/slog"
)

// PrintfLogger is the printf-style logger interface expected by the MCP
// streamable HTTP transport.
type PrintfLogger interface {
	Infof(format string, v ...any)
	Errorf(format string, v ...any)
}

// SlogAdapter adapts an slog.Logger to PrintfLogger.
type SlogAdapter struct {
	logger *slog.Logger
}

var _ PrintfLogger = (*SlogAdapter)(nil)

// NewSlogAdapter creates a new SlogAdapter wrapping the given slog.Logger.
// If logger is nil, slog.Default() is used.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{logger: logger}
}

// Infof logs a formatted message at info level.
func (a *SlogAdapter) Infof(format string, v ...any) {
	a.logger.Info(fmt.Sprintf(format, v...))
}

// Errorf logs a formatted message at error level.
func (a *SlogAdapter) Errorf(format string, v ...any) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

// Logger returns the underlying slog.Logger.
func (a *SlogAdapter) Logger() *slog.Logger {
	return a.logger
}
