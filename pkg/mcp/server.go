// Package mcp exposes the workflow manager over the Model Context Protocol
// so agents can run, store, schedule, and batch-process workflows.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/renwick/stepflow/internal/manager"
)

// StepflowServer wraps an MCP server with workflow tool handlers.
type StepflowServer struct {
	manager   *manager.Manager
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewStepflowServer creates a server with all six tools registered.
func NewStepflowServer(m *manager.Manager, logger *slog.Logger) *StepflowServer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &StepflowServer{manager: m, logger: logger}

	mcpSrv := server.NewMCPServer(
		"stepflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Stepflow is a workflow orchestration engine. Use stepflow.run to execute a stored workflow or instantiate a template, stepflow.save to store workflow and template blueprints, stepflow.list to enumerate workflows, templates, actions, and scheduled tasks, stepflow.schedule to run workflows later or on a recurring schedule, stepflow.cancel to cancel a scheduled task, and stepflow.batch to run a workflow over a list of items."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *StepflowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom
// transports.
func (s *StepflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *StepflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: saveTool(), Handler: s.handleSave},
		{Tool: listTool(), Handler: s.handleList},
		{Tool: scheduleTool(), Handler: s.handleSchedule},
		{Tool: cancelTool(), Handler: s.handleCancel},
		{Tool: batchTool(), Handler: s.handleBatch},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("stepflow.run",
		mcp.WithDescription("Execute a stored workflow, or instantiate and run a stored template"),
		mcp.WithString("workflow", mcp.Description("Name of the stored workflow to run")),
		mcp.WithString("template", mcp.Description("Name of the stored template to instantiate and run")),
		mcp.WithObject("inputs", mcp.Description("Template inputs (template runs only)")),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("stepflow.save",
		mcp.WithDescription("Validate and store a workflow or template blueprint"),
		mcp.WithString("kind", mcp.Required(),
			mcp.Enum("workflow", "template"),
			mcp.Description("Whether to store the blueprint as a workflow or a template"),
		),
		mcp.WithObject("blueprint", mcp.Required(), mcp.Description("Blueprint object: name, description, steps")),
	)
}

func listTool() mcp.Tool {
	return mcp.NewTool("stepflow.list",
		mcp.WithDescription("List stored workflows, templates, registered actions, or scheduled tasks"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "templates", "actions", "tasks"),
			mcp.Description("Type of resource to list"),
		),
	)
}

func scheduleTool() mcp.Tool {
	return mcp.NewTool("stepflow.schedule",
		mcp.WithDescription("Schedule a stored workflow to run later, on a repeat interval, or on a cron expression"),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Name of the stored workflow to schedule")),
		mcp.WithString("at", mcp.Description("RFC3339 time of the first run (default: now)")),
		mcp.WithString("interval", mcp.Description("Repeat interval as a Go duration, e.g. \"5m\" (default: run once)")),
		mcp.WithString("cron", mcp.Description("Standard 5-field cron expression; overrides at/interval")),
	)
}

func cancelTool() mcp.Tool {
	return mcp.NewTool("stepflow.cancel",
		mcp.WithDescription("Cancel a scheduled task and remove it from the scheduler"),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("ID of the scheduled task to cancel")),
	)
}

func batchTool() mcp.Tool {
	return mcp.NewTool("stepflow.batch",
		mcp.WithDescription("Run a stored workflow once per item with bounded parallelism. Each item is available to steps as $item"),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("Name of the stored workflow to run per item")),
		mcp.WithArray("items", mcp.Required(), mcp.Description("Items to process")),
		mcp.WithNumber("batch_size", mcp.Description("Items per batch (default: 10)")),
		mcp.WithNumber("max_workers", mcp.Description("Concurrent workers per batch (default: 5)")),
	)
}
