package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/renwick/stepflow/internal/engine"
	"github.com/renwick/stepflow/pkg/schema"
)

// handleRun executes a stored workflow or instantiates a template.
func (s *StepflowServer) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowName := req.GetString("workflow", "")
	templateName := req.GetString("template", "")

	if workflowName == "" && templateName == "" {
		return mcp.NewToolResultError("one of 'workflow' or 'template' is required"), nil
	}
	if workflowName != "" && templateName != "" {
		return mcp.NewToolResultError("'workflow' and 'template' are mutually exclusive"), nil
	}

	wf, err := s.loadTarget(workflowName, templateName, mcp.ParseStringMap(req, "inputs", nil))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	runErr := wf.Execute(ctx)

	out := map[string]any{
		"workflow": wf.Name,
		"status":   wf.Status,
		"context":  wf.Context,
	}
	if runErr != nil {
		out["error"] = runErr.Error()
		s.logger.Error("workflow run failed",
			slog.String("workflow", wf.Name),
			slog.String("error", runErr.Error()),
		)
	}
	return marshalResult(out)
}

func (s *StepflowServer) loadTarget(workflowName, templateName string, inputs map[string]any) (*engine.Workflow, error) {
	if workflowName != "" {
		wf, err := s.manager.LoadWorkflow(workflowName)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", workflowName, err)
		}
		return wf, nil
	}
	wf, err := s.manager.InstantiateTemplate(templateName, inputs)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", templateName, err)
	}
	return wf, nil
}

// handleSave validates and stores a blueprint.
func (s *StepflowServer) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError("kind is required"), nil
	}

	raw := mcp.ParseStringMap(req, "blueprint", nil)
	if raw == nil {
		return mcp.NewToolResultError("blueprint is required"), nil
	}

	data, marshalErr := json.Marshal(raw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid blueprint: %v", marshalErr)), nil
	}
	var file schema.WorkflowFile
	if unmarshalErr := json.Unmarshal(data, &file); unmarshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid blueprint: %v", unmarshalErr)), nil
	}

	var saveErr error
	switch kind {
	case "workflow":
		saveErr = s.manager.SaveWorkflow(&file)
	case "template":
		saveErr = s.manager.SaveTemplate(&file)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown kind: %s", kind)), nil
	}
	if saveErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save failed: %v", saveErr)), nil
	}

	return marshalResult(map[string]any{
		"kind": kind,
		"name": file.Name,
	})
}

// handleList enumerates workflows, templates, actions, or scheduled tasks.
func (s *StepflowServer) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	switch resource {
	case "workflows":
		names, listErr := s.manager.ListWorkflows()
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"workflows": names})
	case "templates":
		names, listErr := s.manager.ListTemplates()
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"templates": names})
	case "actions":
		return marshalResult(map[string]any{"actions": s.manager.ListActions()})
	case "tasks":
		return marshalResult(map[string]any{"tasks": s.manager.ListScheduledTasks()})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleSchedule registers a workflow for later or recurring execution.
func (s *StepflowServer) handleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowName, err := req.RequireString("workflow")
	if err != nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}

	if cronExpr := req.GetString("cron", ""); cronExpr != "" {
		id, schedErr := s.manager.ScheduleCron(workflowName, cronExpr)
		if schedErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("schedule failed: %v", schedErr)), nil
		}
		return marshalResult(map[string]any{
			"task_id":  id,
			"workflow": workflowName,
			"cron":     cronExpr,
		})
	}

	at := time.Now()
	if atStr := req.GetString("at", ""); atStr != "" {
		parsed, parseErr := time.Parse(time.RFC3339, atStr)
		if parseErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid 'at' time: %v", parseErr)), nil
		}
		at = parsed
	}

	var interval time.Duration
	if intervalStr := req.GetString("interval", ""); intervalStr != "" {
		parsed, parseErr := time.ParseDuration(intervalStr)
		if parseErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid 'interval': %v", parseErr)), nil
		}
		interval = parsed
	}

	id, schedErr := s.manager.ScheduleWorkflow(workflowName, at, interval)
	if schedErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("schedule failed: %v", schedErr)), nil
	}
	return marshalResult(map[string]any{
		"task_id":  id,
		"workflow": workflowName,
		"at":       at.Format(time.RFC3339),
	})
}

// handleCancel cancels a scheduled task.
func (s *StepflowServer) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError("task_id is required"), nil
	}

	if cancelErr := s.manager.CancelScheduledTask(taskID); cancelErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cancel failed: %v", cancelErr)), nil
	}
	return marshalResult(map[string]any{
		"ok":      true,
		"task_id": taskID,
	})
}

// handleBatch runs a stored workflow over a list of items.
func (s *StepflowServer) handleBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowName, err := req.RequireString("workflow")
	if err != nil {
		return mcp.NewToolResultError("workflow is required"), nil
	}

	items, ok := req.GetArguments()["items"].([]any)
	if !ok {
		return mcp.NewToolResultError("items must be an array"), nil
	}

	batchSize := req.GetInt("batch_size", 0)
	maxWorkers := req.GetInt("max_workers", 0)

	bp, bpErr := s.manager.NewBatchProcessor(workflowName, batchSize, maxWorkers)
	if bpErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("batch setup failed: %v", bpErr)), nil
	}

	result, procErr := bp.Process(ctx, items)
	if procErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("batch failed: %v", procErr)), nil
	}

	return marshalResult(map[string]any{
		"workflow":    result.Workflow,
		"total_items": result.TotalItems,
		"succeeded":   len(result.Results),
		"failed":      len(result.Errors),
		"results":     result.Results,
		"errors":      result.Errors,
	})
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
