package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer exposes every registered tool over the Model Context
// Protocol. Tool results are the observation text.
func NewMCPServer(name, version string, registry *Registry) (*server.MCPServer, error) {
	s := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Curriculum retrieval and web search for an educational assistant."),
	)
	for _, t := range registry.Tools() {
		schema, err := json.Marshal(t.Parameters())
		if err != nil {
			return nil, fmt.Errorf("schema for %s: %w", t.Name(), err)
		}
		s.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema), MCPHandler(t))
	}
	return s, nil
}

// MCPHandler adapts a tool to an MCP tool handler. Argument errors are
// reported as tool errors, not protocol errors.
func MCPHandler(t Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		obs, err := t.Execute(ctx, SanitizeArgs(req.GetArguments()))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(obs.Text), nil
	}
}
