package tools

import (
	"context"
	"testing"

	"edu-chatbot-be/pkg/store"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callTool(t *testing.T, tool Tool, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = tool.Name()
	req.Params.Arguments = args
	res, err := MCPHandler(tool)(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	return res
}

func TestMCPHandler(t *testing.T) {
	retriever := &stubRetriever{docs: []store.Document{{ID: "a", Score: 0.9, Text: "Plants make sugar from light"}}}
	tool := NewRetrievalTool(retriever, 0.4, "")

	res := callTool(t, tool, map[string]interface{}{"query": "photosynthesis", "filters": map[string]interface{}{"subject": ""}})
	assert.False(t, res.IsError)
	assert.Equal(t, "Source 1 [Score: 0.90]: Plants make sugar from light", res.Content[0].(mcp.TextContent).Text)
	assert.Nil(t, retriever.filters, "empty filters are dropped")

	res = callTool(t, tool, map[string]interface{}{})
	assert.True(t, res.IsError)
}

func TestNewMCPServer(t *testing.T) {
	registry := NewRegistry(
		NewRetrievalTool(&stubRetriever{}, 0.4, ""),
		NewWebSearchTool(stubSearcher{res: "ok"}, nil, 0),
	)
	s, err := NewMCPServer("edu-chatbot-tools", "1.0.0", registry)
	require.NoError(t, err)

	tools := s.ListTools()
	require.Len(t, tools, 2)
	assert.Contains(t, tools, RetrieveDocuments)
	assert.Contains(t, tools, WebSearch)
}
