package mcp

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"taskmux/internal/core"

	"github.com/mark3labs/mcp-go/mcp"
)

func testMCPServer() *MCPServer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := core.NewRegistry(logger, 0, nil)
	return NewMCPServer(registry, logger, time.Second)
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty result content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, not text", result.Content[0])
	}
	return text.Text
}

func TestStartWaitThroughTools(t *testing.T) {
	s := testMCPServer()
	ctx := context.Background()

	result, err := s.handleStart(ctx, toolRequest(map[string]any{
		"command": "sh -c 'echo hi from mcp'",
	}))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if result.IsError {
		t.Fatalf("start errored: %s", resultText(t, result))
	}
	text := resultText(t, result)
	if !strings.Contains(text, "task started") {
		t.Fatalf("text=%q", text)
	}
	id := extractField(t, text, "id: ")

	result, err = s.handleWait(ctx, toolRequest(map[string]any{
		"task_id":    id,
		"timeout_ms": float64(5000),
	}))
	if err != nil || result.IsError {
		t.Fatalf("wait: %v %v", err, result)
	}
	text = resultText(t, result)
	if !strings.Contains(text, "state: exited") || !strings.Contains(text, "exit code: 0") {
		t.Fatalf("text=%q", text)
	}

	result, _ = s.handleLogs(ctx, toolRequest(map[string]any{
		"task_id":            id,
		"include_timestamps": false,
	}))
	text = resultText(t, result)
	if !strings.Contains(text, "[stdout] hi from mcp") {
		t.Fatalf("logs=%q", text)
	}
}

func TestStatusUnknownTaskIsToolError(t *testing.T) {
	s := testMCPServer()
	result, err := s.handleStatus(context.Background(), toolRequest(map[string]any{
		"task_id": "missing",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error result")
	}
}

func TestPruneTool(t *testing.T) {
	s := testMCPServer()
	result, err := s.handlePrune(context.Background(), toolRequest(nil))
	if err != nil || result.IsError {
		t.Fatalf("prune: %v %v", err, result)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "removed: 0") {
		t.Fatalf("text=%q", text)
	}
}

func TestParseHelpers(t *testing.T) {
	req := toolRequest(map[string]any{
		"args":    []any{"-c", "true"},
		"env":     map[string]any{"A": "1", "B": 2},
		"tail":    float64(3),
		"untyped": "x",
	})

	if got := parseStringSlice(req, "args"); len(got) != 2 || got[0] != "-c" {
		t.Fatalf("args=%v", got)
	}
	if got := parseStringSlice(req, "absent"); got != nil {
		t.Fatalf("absent args=%v", got)
	}

	env := parseStringMap(req, "env")
	if env["A"] != "1" || env["B"] != "2" {
		t.Fatalf("env=%v", env)
	}

	if got := parseOptionalInt(req, "tail"); got == nil || *got != 3 {
		t.Fatalf("tail=%v", got)
	}
	if got := parseOptionalInt(req, "absent"); got != nil {
		t.Fatalf("absent tail=%v", got)
	}
}

func extractField(t *testing.T, text, prefix string) string {
	t.Helper()
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimPrefix(line, prefix)
		}
	}
	t.Fatalf("field %q not found in %q", prefix, text)
	return ""
}
