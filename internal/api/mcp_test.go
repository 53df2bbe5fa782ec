package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/deflator/internal/history"
	"github.com/kalambet/deflator/internal/scrape"
	"github.com/kalambet/deflator/internal/storage"
)

func newTestMCPDeps(t *testing.T) (MCPDeps, *fakeRunner) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	w, err := history.Open(ctx, store, "roumen")
	if err != nil {
		t.Fatalf("opening run: %v", err)
	}
	for _, name := range []string{"a.jpg", "b.jpg"} {
		if err := w.OnItemSuccess(ctx, "roumen/2024/41/"+name, name); err != nil {
			t.Fatalf("recording item: %v", err)
		}
	}
	if err := w.Finish(ctx); err != nil {
		t.Fatalf("finishing run: %v", err)
	}

	runner := &fakeRunner{}
	return MCPDeps{Reader: history.NewReader(store), Runner: runner}, runner
}

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

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_RecentRuns(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpRecentRuns(deps)(context.Background(), makeCallToolRequest("recent_runs", map[string]interface{}{
		"limit": 5,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var runs []history.RunView
	if err := json.Unmarshal([]byte(toolText(t, result)), &runs); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != history.StatusComplete {
		t.Fatalf("expected complete run, got %s", runs[0].Status)
	}
	if runs[0].Succeeded == nil || *runs[0].Succeeded != 2 {
		t.Fatalf("expected 2 succeeded items, got %v", runs[0].Succeeded)
	}
}

func TestMCPTool_RecentItems(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpRecentItems(deps)(context.Background(), makeCallToolRequest("recent_items", map[string]interface{}{
		"source": "roumen",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var items []history.ItemView
	if err := json.Unmarshal([]byte(toolText(t, result)), &items); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestMCPTool_RecentItems_UnknownSource(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpRecentItems(deps)(context.Background(), makeCallToolRequest("recent_items", map[string]interface{}{
		"source": "somewhere",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty list, got %s", text)
	}
}

func TestMCPTool_RecentItems_MissingSource(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpRecentItems(deps)(context.Background(), makeCallToolRequest("recent_items", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing source")
	}
}

func TestMCPTool_ScrapeAll(t *testing.T) {
	deps, runner := newTestMCPDeps(t)

	result, err := mcpScrape(deps)(context.Background(), makeCallToolRequest("scrape", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if runner.allRuns != 1 {
		t.Fatalf("expected one RunAll, got %d", runner.allRuns)
	}

	var results []map[string]any
	if err := json.Unmarshal([]byte(toolText(t, result)), &results); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !strings.HasPrefix(results[0]["summary"].(string), "Result of [roumen] scrapper") {
		t.Fatalf("unexpected summary: %v", results[0]["summary"])
	}
}

func TestMCPTool_ScrapeOne(t *testing.T) {
	deps, runner := newTestMCPDeps(t)

	_, err := mcpScrape(deps)(context.Background(), makeCallToolRequest("scrape", map[string]interface{}{
		"source": "roumen-maso",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.single) != 1 || runner.single[0] != scrape.RoumenMaso {
		t.Fatalf("expected a single roumen-maso run, got %v", runner.single)
	}
}

func TestMCPTool_ScrapeUnknownSource(t *testing.T) {
	deps, runner := newTestMCPDeps(t)

	result, err := mcpScrape(deps)(context.Background(), makeCallToolRequest("scrape", map[string]interface{}{
		"source": "noop",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown source")
	}
	if len(runner.single) != 0 || runner.allRuns != 0 {
		t.Fatal("nothing should have been scraped")
	}
}

func TestMCPResource_Stats(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	contents, err := mcpResourceStats(deps)(context.Background(), makeReadResourceRequest(StatsResourceURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != StatsResourceURI {
		t.Fatalf("expected URI %s, got %s", StatsResourceURI, tc.URI)
	}

	var runs []history.RunView
	if err := json.Unmarshal([]byte(tc.Text), &runs); err != nil {
		t.Fatalf("failed to parse stats JSON: %v", err)
	}
	if len(runs) != 1 || runs[0].Source != "roumen" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	runsHandler := mcpRecentRuns(deps)
	itemsHandler := mcpRecentItems(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = runsHandler(context.Background(), makeCallToolRequest("recent_runs", nil))
			} else {
				_, err = itemsHandler(context.Background(), makeCallToolRequest("recent_items", map[string]interface{}{
					"source": "roumen",
				}))
			}
			if err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent call failed: %v", err)
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("expected server")
	}
}
