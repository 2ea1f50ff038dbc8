package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskmux/internal/core"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes the task lifecycle operations as MCP tools over the
// stdio transport.
type MCPServer struct {
	registry    *core.Registry
	logger      *slog.Logger
	stopTimeout time.Duration
}

// NewMCPServer creates a new MCP server instance.
func NewMCPServer(registry *core.Registry, logger *slog.Logger, stopTimeout time.Duration) *MCPServer {
	if stopTimeout <= 0 {
		stopTimeout = 5 * time.Second
	}
	return &MCPServer{
		registry:    registry,
		logger:      logger,
		stopTimeout: stopTimeout,
	}
}

// Run starts the MCP server using stdio transport.
func (s *MCPServer) Run() error {
	mcpServer := server.NewMCPServer(
		"taskmux",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s.registerTools(mcpServer)

	s.logger.Info("MCP server starting on stdio")

	return server.ServeStdio(mcpServer)
}

// registerTools registers all available MCP tools.
func (s *MCPServer) registerTools(mcpServer *server.MCPServer) {
	// task_start
	mcpServer.AddTool(mcp.NewTool("task_start",
		mcp.WithDescription("Start a long-running process and register it as a managed task. Returns immediately with the task id."),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Executable to run. Split shell-style into argv when args is omitted."),
		),
		mcp.WithArray("args",
			mcp.Description("Argument list. When given, command is taken verbatim as the executable."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory (optional)"),
		),
		mcp.WithObject("env",
			mcp.Description("Environment variable overrides, overlaid on the inherited environment"),
		),
		mcp.WithString("name",
			mcp.Description("Human-readable task name (optional)"),
		),
		mcp.WithNumber("max_log_bytes",
			mcp.Description("Log buffer budget in bytes, default 1 MiB"),
			mcp.Min(1024),
		),
	), s.handleStart)

	// task_status
	mcpServer.AddTool(mcp.NewTool("task_status",
		mcp.WithDescription("Get the summary of a managed task (state, pid, exit outcome, log byte counts). Never includes raw log content."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
	), s.handleStatus)

	// task_list
	mcpServer.AddTool(mcp.NewTool("task_list",
		mcp.WithDescription("List summaries of every registered task, running or exited."),
	), s.handleList)

	// task_logs
	mcpServer.AddTool(mcp.NewTool("task_logs",
		mcp.WithDescription("Fetch captured output of a task. tail returns the last N items and takes precedence over offset."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Return items from this 0-based index to the end"),
			mcp.Min(0),
		),
		mcp.WithNumber("tail",
			mcp.Description("Return only the last N items"),
			mcp.Min(0),
		),
		mcp.WithBoolean("include_timestamps",
			mcp.Description("Prefix each item with its capture timestamp, default true"),
		),
	), s.handleLogs)

	// task_write
	mcpServer.AddTool(mcp.NewTool("task_write",
		mcp.WithDescription("Write data to a running task's standard input."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("Data to write"),
		),
		mcp.WithBoolean("add_newline",
			mcp.Description("Append a trailing newline, default false"),
		),
	), s.handleWrite)

	// task_signal
	mcpServer.AddTool(mcp.NewTool("task_signal",
		mcp.WithDescription("Send a named signal to a task's process. Signaling an exited task is not an error."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithString("signal",
			mcp.Required(),
			mcp.Description("Signal name, e.g. SIGTERM, SIGUSR1, HUP"),
		),
	), s.handleSignal)

	// task_stop
	mcpServer.AddTool(mcp.NewTool("task_stop",
		mcp.WithDescription("Stop a task: SIGTERM, then SIGKILL after the timeout. Always resolves with the current summary."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Milliseconds to wait before escalating to SIGKILL, default 5000"),
			mcp.Min(0),
		),
	), s.handleStop)

	// task_wait
	mcpServer.AddTool(mcp.NewTool("task_wait",
		mcp.WithDescription("Block until a task exits. Without timeout_ms this waits forever; with it, a timeout marker is returned."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task ID"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Maximum milliseconds to wait"),
			mcp.Min(0),
		),
	), s.handleWait)

	// task_prune
	mcpServer.AddTool(mcp.NewTool("task_prune",
		mcp.WithDescription("Remove exited tasks from the registry. With include_running, running tasks are detached without being signalled."),
		mcp.WithBoolean("include_running",
			mcp.Description("Also remove running tasks, default false"),
		),
	), s.handlePrune)

	s.logger.Info("MCP tools registered", "count", 9)
}

// handleStart handles the task_start tool call.
func (s *MCPServer) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command := mcp.ParseString(request, "command", "")

	spec := core.StartSpec{
		Command:     command,
		Args:        parseStringSlice(request, "args"),
		Env:         parseStringMap(request, "env"),
		MaxLogBytes: int(mcp.ParseFloat64(request, "max_log_bytes", 0)),
	}
	if cwd := mcp.ParseString(request, "cwd", ""); cwd != "" {
		spec.WorkingDir = &cwd
	}
	if name := mcp.ParseString(request, "name", ""); name != "" {
		spec.Name = &name
	}

	summary, err := s.registry.Start(spec)
	if err != nil {
		s.logger.Error("start task", "command", command, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to start task: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("task started\nid: %s\npid: %d\nstate: %s",
		summary.ID, summary.PID, summary.State)), nil
}

// handleStatus handles the task_status tool call.
func (s *MCPServer) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	summary, err := s.registry.Status(taskID)
	if err != nil {
		return s.errorResult(taskID, err), nil
	}
	return mcp.NewToolResultText(formatSummary(summary)), nil
}

// handleList handles the task_list tool call.
func (s *MCPServer) handleList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summaries := s.registry.List()
	if len(summaries) == 0 {
		return mcp.NewToolResultText("no tasks registered"), nil
	}

	result := fmt.Sprintf("%d task(s):\n\n", len(summaries))
	for _, summary := range summaries {
		result += formatSummary(summary) + "\n"
	}
	return mcp.NewToolResultText(result), nil
}

// handleLogs handles the task_logs tool call.
func (s *MCPServer) handleLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	offset := parseOptionalInt(request, "offset")
	tail := parseOptionalInt(request, "tail")
	includeTimestamps := mcp.ParseBoolean(request, "include_timestamps", true)

	view, err := s.registry.Logs(taskID, offset, tail, includeTimestamps)
	if err != nil {
		return s.errorResult(taskID, err), nil
	}

	header := fmt.Sprintf("items: %d of %d\n", view.ReturnedItems, view.TotalItems)
	return mcp.NewToolResultText(header + view.Text), nil
}

// handleWrite handles the task_write tool call.
func (s *MCPServer) handleWrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	data := mcp.ParseString(request, "data", "")
	addNewline := mcp.ParseBoolean(request, "add_newline", false)

	if err := s.registry.Write(taskID, data, addNewline); err != nil {
		return s.errorResult(taskID, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("wrote %d bytes to stdin of %s", len(data), taskID)), nil
}

// handleSignal handles the task_signal tool call.
func (s *MCPServer) handleSignal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")
	signal := mcp.ParseString(request, "signal", "")

	result, err := s.registry.Signal(taskID, signal)
	if err != nil {
		return s.errorResult(taskID, err), nil
	}
	if !result.Delivered {
		return mcp.NewToolResultText(fmt.Sprintf("%s not delivered: task %s is not running (pid %d)",
			result.Signal, taskID, result.PID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("delivered %s to pid %d", result.Signal, result.PID)), nil
}

// handleStop handles the task_stop tool call.
func (s *MCPServer) handleStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	timeout := s.stopTimeout
	if ms := mcp.ParseFloat64(request, "timeout_ms", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	summary, err := s.registry.Stop(taskID, timeout)
	if err != nil {
		return s.errorResult(taskID, err), nil
	}
	return mcp.NewToolResultText(formatSummary(summary)), nil
}

// handleWait handles the task_wait tool call.
func (s *MCPServer) handleWait(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID := mcp.ParseString(request, "task_id", "")

	var timeout *time.Duration
	if ms := parseOptionalInt(request, "timeout_ms"); ms != nil {
		d := time.Duration(*ms) * time.Millisecond
		timeout = &d
	}

	result, err := s.registry.Wait(taskID, timeout)
	if err != nil {
		return s.errorResult(taskID, err), nil
	}
	if result.TimedOut {
		return mcp.NewToolResultText(fmt.Sprintf("timeout: true\nid: %s\nstate: %s\npid: %d",
			result.Summary.ID, result.Summary.State, result.Summary.PID)), nil
	}
	return mcp.NewToolResultText(formatSummary(result.Summary)), nil
}

// handlePrune handles the task_prune tool call.
func (s *MCPServer) handlePrune(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	includeRunning := mcp.ParseBoolean(request, "include_running", false)

	result := s.registry.Prune(includeRunning)
	return mcp.NewToolResultText(fmt.Sprintf("removed: %d\nremaining: %d", result.Removed, result.Remaining)), nil
}

// Helper functions

func (s *MCPServer) errorResult(taskID string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, core.ErrTaskNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", taskID))
	case errors.Is(err, core.ErrNotRunning):
		return mcp.NewToolResultError(fmt.Sprintf("task is not running: %s", taskID))
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func formatSummary(s core.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "task id: %s\n", s.ID)
	if s.Name != nil {
		fmt.Fprintf(&b, "name: %s\n", *s.Name)
	}
	fmt.Fprintf(&b, "state: %s\n", s.State)
	fmt.Fprintf(&b, "command: %s\n", s.Command)
	if len(s.Args) > 0 {
		fmt.Fprintf(&b, "args: %s\n", strings.Join(s.Args, " "))
	}
	if s.WorkingDir != nil {
		fmt.Fprintf(&b, "cwd: %s\n", *s.WorkingDir)
	}
	fmt.Fprintf(&b, "pid: %d\n", s.PID)
	if s.ExitCode != nil {
		fmt.Fprintf(&b, "exit code: %d\n", *s.ExitCode)
	}
	if s.Signal != nil {
		fmt.Fprintf(&b, "signal: %s\n", *s.Signal)
	}
	fmt.Fprintf(&b, "created: %s\n", s.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "log bytes: %d / %d\n", s.LogBytes, s.MaxLogBytes)
	return b.String()
}

// parseOptionalInt distinguishes an absent numeric argument from zero.
func parseOptionalInt(request mcp.CallToolRequest, key string) *int {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		return &v
	default:
		return nil
	}
}

// parseStringSlice returns nil when the argument is absent, so callers
// can tell "no args given" apart from an explicitly empty list.
func parseStringSlice(request mcp.CallToolRequest, key string) []string {
	raw, ok := request.GetArguments()[key]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(item))
			}
		}
		return out
	default:
		return nil
	}
}

func parseStringMap(request mcp.CallToolRequest, key string) map[string]string {
	raw := mcp.ParseStringMap(request, key, nil)
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
