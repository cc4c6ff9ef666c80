package common

import (
	"context"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/openproject-mcp/internal/instrumentation"
	"github.com/teemow/openproject-mcp/internal/server"
)

// ToolHandler is the handler type accepted by (*mcpserver.MCPServer).AddTool.
type ToolHandler = mcpserver.ToolHandlerFunc

// InstrumentedToolHandler wraps a tool handler with a tool span, metrics and
// audit logging. serviceName and operation name the backend call the tool
// makes; the call itself is measured by the client. A result with IsError set
// counts as a failed invocation.
//
// Usage:
//
//	s.AddTool(tool, common.InstrumentedToolHandler("get_task",
//		instrumentation.ServiceOpenProject, instrumentation.OperationGet, sc, handler))
func InstrumentedToolHandler(
	toolName string,
	serviceName string,
	operation string,
	sc *server.ServerContext,
	handler ToolHandler,
) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()

		var opts []instrumentation.SpanOption
		if serviceName != "" {
			opts = append(opts, instrumentation.WithBackend(serviceName, operation))
		}
		resourceID := ""
		if id, ok, err := IntArg(args, "task_id"); ok && err == nil {
			resourceID = strconv.Itoa(id)
			opts = append(opts, instrumentation.WithWorkPackage(id))
		}

		ctx, span := instrumentation.StartToolSpan(ctx, toolName, opts...)

		invocation := instrumentation.NewToolInvocation(toolName).
			WithSpanContext(ctx).
			WithResource(resourceID).
			WithArguments(args)
		if serviceName != "" {
			invocation.WithService(serviceName, operation)
		}

		result, err := handler(ctx, request)

		switch {
		case err != nil:
			invocation.CompleteWithError(err)
			instrumentation.EndSpan(span, err)
		case result != nil && result.IsError:
			invocation.Complete(false, nil)
			instrumentation.FailSpan(span, "tool returned an error result")
		default:
			invocation.CompleteSuccess()
			instrumentation.EndSpan(span, nil)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, invocation.Status(), invocation.Duration)
		sc.AuditLogger().LogToolInvocation(invocation)

		return result, err
	}
}
