package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/localtalk/internal/feed"
	"github.com/kalambet/localtalk/internal/rag"
)

const (
	latestURI         = "feed://latest"
	defaultRecallK    = 5
	defaultRecentPost = 7
)

// MCPRecaller is the diversified search behind the recall tool.
type MCPRecaller interface {
	Recall(ctx context.Context, query string, topK int) ([]rag.Chunk, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Recaller MCPRecaller
	// LatestPath is the latest-post file written by the pipeline.
	LatestPath string
	// RollingPath is the newest-first rolling feed; empty disables recent_posts.
	RollingPath string
	Version     string
}

// NewMCPServer exposes the knowledge base and the bot's own posts to MCP
// clients over the tools recall, latest_post and recent_posts and the
// feed://latest resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer("localtalk", version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("localtalk: local knowledge for the area the bot posts about, and the posts it wrote."),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("recall",
		mcp.WithDescription("Search the local knowledge base and return relevant passages, at most one per source file."),
		mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum number of results (default %d)", defaultRecallK))),
	), mcpRecall(deps))

	s.AddTool(mcp.NewTool("latest_post",
		mcp.WithDescription("Return the text of the most recently generated post."),
	), mcpLatestPost(deps))

	if deps.RollingPath != "" {
		s.AddTool(mcp.NewTool("recent_posts",
			mcp.WithDescription("Return recent daily posts, newest first, as JSON feed entries."),
			mcp.WithNumber("limit", mcp.Description(fmt.Sprintf("Maximum number of posts (default %d)", defaultRecentPost))),
		), mcpRecentPosts(deps))
	}

	s.AddResource(mcp.NewResource(latestURI, "Latest Post",
		mcp.WithResourceDescription("The latest generated feed entry as JSON"),
		mcp.WithMIMEType("application/json"),
	), mcpResourceLatest(deps))

	return s
}

func positiveOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func jsonResult(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
	}
	return mcp.NewToolResultText(string(b))
}

func mcpRecall(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || query == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		chunks, err := deps.Recaller.Recall(ctx, query, positiveOr(req.GetInt("limit", defaultRecallK), defaultRecallK))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("recall failed: %v", err)), nil
		}
		if chunks == nil {
			chunks = []rag.Chunk{}
		}
		return jsonResult(chunks), nil
	}
}

func mcpLatestPost(deps MCPDeps) server.ToolHandlerFunc {
	return func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		e, err := feed.LoadLatest(deps.LatestPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return mcp.NewToolResultError("no post has been generated yet"), nil
		case err != nil:
			return mcp.NewToolResultError(fmt.Sprintf("reading latest post: %v", err)), nil
		}
		return mcp.NewToolResultText(e.Text), nil
	}
}

func mcpRecentPosts(deps MCPDeps) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		f, err := feed.Load(deps.RollingPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return jsonResult([]feed.Entry{}), nil
		case err != nil:
			return mcp.NewToolResultError(fmt.Sprintf("reading feed: %v", err)), nil
		}
		items := f.Items
		if n := positiveOr(req.GetInt("limit", defaultRecentPost), defaultRecentPost); len(items) > n {
			items = items[:n]
		}
		if items == nil {
			items = []feed.Entry{}
		}
		return jsonResult(items), nil
	}
}

func mcpResourceLatest(deps MCPDeps) server.ResourceHandlerFunc {
	return func(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		e, err := feed.LoadLatest(deps.LatestPath)
		if err != nil {
			return nil, fmt.Errorf("reading latest post: %w", err)
		}
		b, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(b),
		}}, nil
	}
}
