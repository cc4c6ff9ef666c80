package openproject_tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/openproject-mcp/internal/instrumentation"
	"github.com/teemow/openproject-mcp/internal/logging"
	"github.com/teemow/openproject-mcp/internal/openproject"
	"github.com/teemow/openproject-mcp/internal/server"
	"github.com/teemow/openproject-mcp/internal/tools/common"
)

// Tool names
const (
	ToolGetAITasks = "get_ai_tasks"
	ToolGetTask    = "get_task"
)

// NoAITasksMessage is returned by get_ai_tasks when no task qualifies.
const NoAITasksMessage = "No AI-ready tasks found in 'Баги' or 'Готово к разработке' columns."

// TaskSource is the part of *openproject.Client the tools use.
type TaskSource interface {
	GetAIReadyTasks(ctx context.Context) ([]openproject.WorkPackage, error)
	GetWorkPackage(ctx context.Context, id int) (*openproject.WorkPackage, error)
	FormatTaskSummary(wp openproject.WorkPackage) openproject.TaskSummary
	FormatTaskSummaries(wps []openproject.WorkPackage) []openproject.TaskSummary
}

// outcome is the result of a tool handler before it is put on the wire.
type outcome struct {
	text   string
	failed bool
}

func success(text string) outcome {
	return outcome{text: text}
}

func failure(format string, args ...any) outcome {
	return outcome{text: fmt.Sprintf(format, args...), failed: true}
}

func (o outcome) result() *mcp.CallToolResult {
	if o.failed {
		return mcp.NewToolResultError(o.text)
	}
	return mcp.NewToolResultText(o.text)
}

// Dispatcher routes tool calls by name to their handlers.
type Dispatcher struct {
	tasks  TaskSource
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher reading from tasks.
func NewDispatcher(tasks TaskSource, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{tasks: tasks, logger: logger}
}

// Dispatch runs the named tool. It always returns a result; failures are
// results with IsError set.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	var out outcome
	switch name {
	case ToolGetAITasks:
		out = d.getAITasks(ctx)
	case ToolGetTask:
		out = d.getTask(ctx, args)
	default:
		// Only reachable when Dispatch is called directly. Over MCP, mcp-go
		// rejects unregistered names with a JSON-RPC invalid params error
		// before any handler runs.
		out = failure("Unknown tool: %s", name)
	}

	logger := logging.WithTool(d.logger, name)
	if out.failed {
		logger.Warn("tool call failed", slog.String("result", out.text))
	} else {
		logger.Debug("tool call succeeded", slog.Int("bytes", len(out.text)))
	}
	return out.result()
}

// Handle adapts Dispatch to the MCP tool handler signature.
func (d *Dispatcher) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return d.Dispatch(ctx, request.Params.Name, request.GetArguments()), nil
}

func (d *Dispatcher) getAITasks(ctx context.Context) outcome {
	wps, err := d.tasks.GetAIReadyTasks(ctx)
	if err != nil {
		return failure("Error fetching AI tasks: %v", err)
	}
	if len(wps) == 0 {
		return success(NoAITasksMessage)
	}

	summaries := d.tasks.FormatTaskSummaries(wps)
	text, err := renderJSON(struct {
		Count int                       `json:"count"`
		Tasks []openproject.TaskSummary `json:"tasks"`
	}{Count: len(summaries), Tasks: summaries})
	if err != nil {
		return failure("Error fetching AI tasks: %v", err)
	}
	return success(text)
}

func (d *Dispatcher) getTask(ctx context.Context, args map[string]any) outcome {
	id, present, err := common.IntArg(args, "task_id")
	if !present {
		return failure("Error: task_id is required")
	}
	if err != nil {
		return failure("Error: task_id must be an integer")
	}

	wp, err := d.tasks.GetWorkPackage(ctx, id)
	if err != nil {
		if errors.Is(err, openproject.ErrNotFound) {
			d.logger.Debug("task not found", logging.TaskID(id))
		}
		return failure("Error fetching task %d: %v", id, err)
	}

	text, err := renderJSON(d.tasks.FormatTaskSummary(*wp))
	if err != nil {
		return failure("Error fetching task %d: %v", id, err)
	}
	return success(text)
}

// renderJSON indents with two spaces and leaves non-ASCII and HTML
// characters unescaped.
func renderJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

func getAITasksTool() mcp.Tool {
	return mcp.NewTool(ToolGetAITasks,
		mcp.WithDescription("Get list of tasks ready for AI development from OpenProject. "+
			"Returns tasks from 'Баги' and 'Готово к разработке' columns that have ai_dev flag set to true. "+
			"Each task includes: id, url, subject, description, type, status, priority, assignee."),
	)
}

// getTaskTool is built as a literal because the mcp helpers only offer a
// "number" property type.
func getTaskTool() mcp.Tool {
	return mcp.Tool{
		Name: ToolGetTask,
		Description: "Get detailed information about a specific task by its ID. " +
			"Returns full task details including description, status, assignee, etc.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"task_id": map[string]any{
					"type":        "integer",
					"description": "The work package (task) ID in OpenProject",
				},
			},
			Required: []string{"task_id"},
		},
	}
}

// Tools returns the definitions of all OpenProject tools.
func Tools() []mcp.Tool {
	return []mcp.Tool{getAITasksTool(), getTaskTool()}
}

// RegisterOpenProjectTools registers the OpenProject tools with the MCP server.
// Both tools share one Dispatcher around the server context's client.
func RegisterOpenProjectTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc == nil || sc.Client() == nil {
		return errors.New("server context with an OpenProject client is required")
	}
	d := NewDispatcher(sc.Client(), sc.Logger())

	s.AddTool(getAITasksTool(), common.InstrumentedToolHandler(
		ToolGetAITasks, instrumentation.ServiceOpenProject, instrumentation.OperationAIReady, sc, d.Handle))
	s.AddTool(getTaskTool(), common.InstrumentedToolHandler(
		ToolGetTask, instrumentation.ServiceOpenProject, instrumentation.OperationGet, sc, d.Handle))

	return nil
}
