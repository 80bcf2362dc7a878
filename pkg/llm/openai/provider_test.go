package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"edu-chatbot-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMapsToolCallsAndUsage(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_1",
						"type": "function",
						"function": {"name": "retrieve_documents", "arguments": "{\"query\":\"cells\"}"}
					}]
				}
			}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL+"/v1/", "gpt-4o-mini")
	resp, err := p.Chat(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "be helpful"},
		{Role: llm.RoleUser, Content: "what is a cell?"},
	}, llm.WithTools([]llm.ToolDefinition{{
		Name:        "retrieve_documents",
		Description: "search",
		Parameters:  map[string]interface{}{"type": "object"},
	}}), llm.WithMaxTokens(50))
	require.NoError(t, err)

	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "retrieve_documents", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query":"cells"}`, resp.ToolCalls[0].Arguments)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 3, resp.Usage.OutputTokens)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	tools, ok := captured["tools"].([]interface{})
	require.True(t, ok)
	assert.Len(t, tools, 1)
}

func TestToOpenAIMessagesKeepsToolPairing(t *testing.T) {
	msgs := toOpenAIMessages([]llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "call_a", Name: "web_search", Arguments: `{}`}}},
		{Role: llm.RoleTool, ToolCallID: "call_a", Content: "observation"},
	})

	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[0].OfAssistant)
	require.Len(t, msgs[0].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "call_a", msgs[0].OfAssistant.ToolCalls[0].OfFunction.ID)
	require.NotNil(t, msgs[1].OfTool)
	assert.Equal(t, "call_a", msgs[1].OfTool.ToolCallID)
}
