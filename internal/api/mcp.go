package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/deflator/internal/scrape"
	"github.com/kalambet/deflator/internal/storage"
)

// StatsResourceURI is the MCP resource carrying the latest run statistics.
const StatsResourceURI = "deflator://stats"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Reader  Reader
	Runner  Runner
	Version string
}

// NewMCPServer creates an MCP server with the deflator tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"deflator",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("deflator mirrors new images from gallery sites and keeps a history of every scrape run."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("scrape",
			mcp.WithDescription("Run a scrape now. Without a source every configured source is scraped in turn."),
			mcp.WithString("source", mcp.Description("Source to scrape (e.g. roumen, roumen-maso)")),
		),
		mcpScrape(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_runs",
			mcp.WithDescription("List the most recent scrape runs with their timing and success counts."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 10, max 300)")),
		),
		mcpRecentRuns(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_items",
			mcp.WithDescription("List the most recently downloaded items of one source."),
			mcp.WithString("source", mcp.Description("Source name"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 10, max 300)")),
		),
		mcpRecentItems(deps),
	)

	s.AddResource(
		mcp.NewResource(
			StatsResourceURI,
			"Scrape statistics",
			mcp.WithResourceDescription("Most recent scrape runs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpScrape(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var results []*scrape.Result
		if name := req.GetString("source", ""); name != "" {
			src := scrape.Of(name)
			if src == scrape.Noop {
				return mcpError(fmt.Sprintf("unknown source %q", name)), nil
			}
			results = []*scrape.Result{deps.Runner.Run(ctx, src)}
		} else {
			results, _ = deps.Runner.RunAll(ctx)
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecentRuns(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", storage.LimitFallback)

		runs, err := deps.Reader.RecentRuns(ctx, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("reading runs failed: %v", err)), nil
		}
		if len(runs) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(runs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal runs: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecentItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("source")
		if err != nil {
			return mcpError("source is required"), nil
		}
		src := scrape.Of(name)
		if src == scrape.Noop {
			return mcpText("[]"), nil
		}

		items, err := deps.Reader.RecentItems(ctx, src.String(), req.GetInt("limit", storage.LimitFallback))
		if err != nil {
			return mcpError(fmt.Sprintf("reading items failed: %v", err)), nil
		}
		if len(items) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(items)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal items: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		runs, err := deps.Reader.RecentRuns(ctx, storage.LimitFallback)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent runs: %w", err)
		}

		b, err := json.Marshal(runs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
