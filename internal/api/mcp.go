package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/piconix/f1voice/internal/bias"
)

const recentQuestionsURI = "f1://questions/recent"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Answerer Answerer
	Bias     BiasDetector
	History  History
	Version  string
}

// NewMCPServer creates an MCP server exposing question answering and bias
// detection as tools and the recent question log as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"f1voice",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("f1voice answers Formula One results questions and compares news articles for bias."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ask_formula_one",
			mcp.WithDescription("Answer a question about a Formula One race result: a driver's finishing position, or the driver or constructor at a position, for a given season and round."),
			mcp.WithString("question", mcp.Description("The question in natural language"), mcp.Required()),
		),
		mcpAskFormulaOne(deps),
	)

	s.AddTool(
		mcp.NewTool("detect_bias",
			mcp.WithDescription("Find the most biased of a set of news articles."),
			mcp.WithString("articles", mcp.Description("JSON array of {title, content} objects"), mcp.Required()),
		),
		mcpDetectBias(deps),
	)

	s.AddResource(
		mcp.NewResource(
			recentQuestionsURI,
			"Recent Questions",
			mcp.WithResourceDescription("Last 10 answered questions"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAskFormulaOne(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		text, _, err := deps.Answerer.AnswerText(ctx, question)
		if err != nil {
			name, _, msg := classify(err)
			return mcpError(fmt.Sprintf("%s: %s", name, msg)), nil
		}
		return mcpText(text), nil
	}
}

func mcpDetectBias(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("articles")
		if err != nil {
			return mcpError("articles is required"), nil
		}
		var articles []bias.Article
		if err := json.Unmarshal([]byte(raw), &articles); err != nil {
			return mcpError(fmt.Sprintf("articles must be a JSON array of {title, content}: %v", err)), nil
		}

		resp, err := deps.Bias.Detect(ctx, articles)
		if err != nil {
			name, _, msg := classify(err)
			return mcpError(fmt.Sprintf("%s: %s", name, msg)), nil
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		qas, err := deps.History.RecentQuestionAnswers(ctx, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent questions: %w", err)
		}

		b, err := json.Marshal(toHistoryItems(qas))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal recent questions: %w", err)
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
