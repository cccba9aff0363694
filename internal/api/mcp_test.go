package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/localtalk/internal/feed"
	"github.com/kalambet/localtalk/internal/rag"
)

// --- mocks ---

type mockRecaller struct {
	chunks   []rag.Chunk
	err      error
	gotLimit int
}

func (m *mockRecaller) Recall(_ context.Context, _ string, topK int) ([]rag.Chunk, error) {
	m.gotLimit = topK
	return m.chunks, m.err
}

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func writeLatest(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "latest.json")
	e := feed.NewEntry(time.Date(2025, 6, 10, 7, 30, 0, 0, time.UTC), "Yokosuka", text)
	if err := feed.NewStore().WriteLatest([]string{path}, e); err != nil {
		t.Fatal(err)
	}
	return path
}

// --- tests ---

func TestMCPTool_Recall_ReturnsChunks(t *testing.T) {
	rec := &mockRecaller{chunks: []rag.Chunk{
		{ID: "c1", Text: "Sarushima is a small island", Distance: 0.1, SourceKey: "spots/sarushima.json"},
		{ID: "c2", Text: "Navy burgers", Distance: 0.2, SourceKey: "food/burger.md"},
	}}
	handler := mcpRecall(MCPDeps{Recaller: rec})

	result, err := handler(context.Background(), makeCallToolRequest("recall", map[string]interface{}{
		"query": "island",
		"limit": 3,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var chunks []rag.Chunk
	if err := json.Unmarshal([]byte(toolText(t, result)), &chunks); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(chunks) != 2 || chunks[0].SourceKey != "spots/sarushima.json" {
		t.Fatalf("chunks = %+v", chunks)
	}
	if rec.gotLimit != 3 {
		t.Errorf("limit = %d, want 3", rec.gotLimit)
	}
}

func TestMCPTool_Recall_DefaultLimitAndEmpty(t *testing.T) {
	rec := &mockRecaller{}
	result, _ := mcpRecall(MCPDeps{Recaller: rec})(context.Background(), makeCallToolRequest("recall", map[string]interface{}{
		"query": "anything",
	}))
	if toolText(t, result) != "[]" {
		t.Errorf("text = %q, want []", toolText(t, result))
	}
	if rec.gotLimit != 5 {
		t.Errorf("limit = %d, want 5", rec.gotLimit)
	}
}

func TestMCPTool_Recall_Errors(t *testing.T) {
	handler := mcpRecall(MCPDeps{Recaller: &mockRecaller{err: errors.New("store closed")}})

	result, _ := handler(context.Background(), makeCallToolRequest("recall", map[string]interface{}{}))
	if !result.IsError {
		t.Error("missing query should be a tool error")
	}

	result, _ = handler(context.Background(), makeCallToolRequest("recall", map[string]interface{}{"query": "x"}))
	if !result.IsError || !strings.Contains(toolText(t, result), "store closed") {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPTool_LatestPost(t *testing.T) {
	path := writeLatest(t, "Good morning, Yokosuka! ☀️")
	result, err := mcpLatestPost(MCPDeps{LatestPath: path})(context.Background(), makeCallToolRequest("latest_post", nil))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsError || toolText(t, result) != "Good morning, Yokosuka! ☀️" {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPTool_LatestPost_Missing(t *testing.T) {
	result, _ := mcpLatestPost(MCPDeps{LatestPath: filepath.Join(t.TempDir(), "none.json")})(context.Background(), makeCallToolRequest("latest_post", nil))
	if !result.IsError || !strings.Contains(toolText(t, result), "no post") {
		t.Errorf("result = %+v", result)
	}
}

func TestMCPResource_Latest(t *testing.T) {
	path := writeLatest(t, "Evening walk at Kannonzaki")
	contents, err := mcpResourceLatest(MCPDeps{LatestPath: path})(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: latestURI},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &got); err != nil {
		t.Fatal(err)
	}
	if got["id"] != "feed_20250610_073000_UTC" || got["text"] != "Evening walk at Kannonzaki" {
		t.Errorf("resource = %v", got)
	}
}

func TestMCPTool_RecentPosts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rolling.json")
	st := feed.NewStore()
	for day := 8; day <= 10; day++ {
		e := feed.NewEntry(time.Date(2025, 6, day, 7, 0, 0, 0, time.UTC), "Yokosuka", fmt.Sprintf("day %d", day))
		if _, err := st.UpsertByDate([]string{path}, e, 10); err != nil {
			t.Fatal(err)
		}
	}

	result, _ := mcpRecentPosts(MCPDeps{RollingPath: path})(context.Background(), makeCallToolRequest("recent_posts", map[string]interface{}{"limit": 2}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	var items []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0]["text"] != "day 10" || items[1]["text"] != "day 9" {
		t.Errorf("items = %v", items)
	}

	missing, _ := mcpRecentPosts(MCPDeps{RollingPath: filepath.Join(t.TempDir(), "none.json")})(context.Background(), makeCallToolRequest("recent_posts", nil))
	if missing.IsError || toolText(t, missing) != "[]" {
		t.Errorf("missing feed = %+v", missing)
	}
}

func TestNewMCPServer_Registers(t *testing.T) {
	s := NewMCPServer(MCPDeps{Recaller: &mockRecaller{}, LatestPath: "x"})
	if s == nil {
		t.Fatal("nil server")
	}
}
