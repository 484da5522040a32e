package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestBuildToolsListResponseJSON(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := BuildToolsListResponseJSON(ctx, Config{})
	if err != nil {
		t.Fatalf("build tools list json: %v", err)
	}

	var decoded ToolsListResponse
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.JSONRPC != "2.0" {
		t.Fatalf("expected jsonrpc=2.0, got %q", decoded.JSONRPC)
	}
	if decoded.ID != 1 {
		t.Fatalf("expected id=1, got %d", decoded.ID)
	}

	found := map[string]bool{}
	for _, tool := range decoded.Result.Tools {
		if tool == nil {
			continue
		}
		found[tool.Name] = true
		if tool.InputSchema == nil {
			t.Fatalf("tool %s has no input schema", tool.Name)
		}
	}
	for _, name := range mcpToolNames {
		if !found[name] {
			t.Fatalf("tools/list missing %s", name)
		}
	}
	if len(found) != len(mcpToolNames) {
		t.Fatalf("expected %d tools, got %d", len(mcpToolNames), len(found))
	}
}

func TestBuildToolsListResponseSchemasMarkRequiredFields(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := BuildToolsListResponse(ctx, Config{PayloadMode: PayloadModeInline})
	if err != nil {
		t.Fatalf("build tools list: %v", err)
	}
	for _, tool := range resp.Result.Tools {
		if tool.Name != toolCMSGetObject {
			continue
		}
		raw, err := json.Marshal(tool.InputSchema)
		if err != nil {
			t.Fatalf("marshal schema: %v", err)
		}
		var schema struct {
			Required []string `json:"required"`
		}
		if err := json.Unmarshal(raw, &schema); err != nil {
			t.Fatalf("decode schema: %v", err)
		}
		got := strings.Join(schema.Required, ",")
		if !strings.Contains(got, "branch") || !strings.Contains(got, "id") || strings.Contains(got, "inherited") {
			t.Fatalf("unexpected required fields %v", schema.Required)
		}
		if !strings.Contains(tool.Description, "inherited=true") {
			t.Fatalf("description not carried into tools/list")
		}
		return
	}
	t.Fatalf("tools/list missing %s", toolCMSGetObject)
}
