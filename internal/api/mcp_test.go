package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/piconix/f1voice/internal/bias"
	"github.com/piconix/f1voice/internal/lookup"
	"github.com/piconix/f1voice/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *mockAnswerer, *mockBias, *storage.Store) {
	t.Helper()
	a := &mockAnswerer{text: "Ferrari"}
	b := &mockBias{}
	store := newTestStore(t)
	return MCPDeps{Answerer: a, Bias: b, History: store}, a, b, store
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

// --- tests ---

func TestNewMCPServer(t *testing.T) {
	deps, _, _, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_AskFormulaOne(t *testing.T) {
	deps, a, _, _ := newTestMCPDeps(t)
	handler := mcpAskFormulaOne(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ask_formula_one", map[string]interface{}{
		"question": "Who constructed the car that won round 1 of 2000?",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "Ferrari" {
		t.Errorf("answer = %q, want Ferrari", got)
	}
	if a.question != "Who constructed the car that won round 1 of 2000?" {
		t.Errorf("question = %q", a.question)
	}
}

func TestMCPTool_AskFormulaOne_Errors(t *testing.T) {
	deps, a, _, _ := newTestMCPDeps(t)
	handler := mcpAskFormulaOne(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("ask_formula_one", map[string]interface{}{}))
	if !result.IsError {
		t.Error("expected error for missing question")
	}

	a.err = goerr.Wrap(lookup.ErrDriverNotFound, "lookup")
	result, _ = handler(context.Background(), makeCallToolRequest("ask_formula_one", map[string]interface{}{"question": "q"}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if got := toolText(t, result); !strings.HasPrefix(got, "DriverNotFound:") {
		t.Errorf("error text = %q", got)
	}
}

func TestMCPTool_DetectBias(t *testing.T) {
	deps, _, b, _ := newTestMCPDeps(t)
	b.resp = bias.Response{BiasedArticle: bias.BiasedArticle{Title: "B", Type: bias.Negative, Reason: "loaded"}}
	handler := mcpDetectBias(deps)

	result, err := handler(context.Background(), makeCallToolRequest("detect_bias", map[string]interface{}{
		"articles": `[{"title":"A","content":"x"},{"title":"B","content":"y"}]`,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var got bias.Response
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if got.BiasedArticle.Title != "B" || got.BiasedArticle.Type != bias.Negative {
		t.Errorf("response = %+v", got)
	}
	if len(b.articles) != 2 {
		t.Errorf("detector received %d articles", len(b.articles))
	}
}

func TestMCPTool_DetectBias_InvalidJSON(t *testing.T) {
	deps, _, b, _ := newTestMCPDeps(t)
	handler := mcpDetectBias(deps)

	result, _ := handler(context.Background(), makeCallToolRequest("detect_bias", map[string]interface{}{
		"articles": "not json",
	}))
	if !result.IsError {
		t.Error("expected error for invalid articles JSON")
	}
	if b.articles != nil {
		t.Error("detector must not be called")
	}
}

func TestMCPResource_RecentQuestions(t *testing.T) {
	deps, _, _, store := newTestMCPDeps(t)
	for i := 0; i < 12; i++ {
		if _, err := store.SaveQuestionAnswer(context.Background(), storage.QuestionAnswer{Question: "q", Answer: "a"}); err != nil {
			t.Fatal(err)
		}
	}

	contents, err := mcpResourceRecent(deps)(context.Background(), makeReadResourceRequest(recentQuestionsURI))
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
	if tc.URI != recentQuestionsURI || tc.MIMEType != "application/json" {
		t.Errorf("contents = %+v", tc)
	}

	var items []historyItem
	if err := json.Unmarshal([]byte(tc.Text), &items); err != nil {
		t.Fatalf("failed to parse resource: %v", err)
	}
	if len(items) != 10 {
		t.Errorf("items = %d, want 10", len(items))
	}
}
