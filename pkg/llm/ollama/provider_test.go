package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"edu-chatbot-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaChat(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		status        int
		wantErr       bool
		wantText      string
		wantToolCalls int
	}{
		{
			name:     "plain answer with usage",
			status:   http.StatusOK,
			body:     `{"model":"llama3","message":{"role":"assistant","content":"Mitochondria."},"done":true,"prompt_eval_count":20,"eval_count":4}`,
			wantText: "Mitochondria.",
		},
		{
			name:          "tool call",
			status:        http.StatusOK,
			body:          `{"model":"llama3","message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"web_search","arguments":{"query":"news"}}}]},"done":true}`,
			wantToolCalls: 1,
		},
		{
			name:    "upstream error",
			status:  http.StatusInternalServerError,
			body:    `{"error":"model not loaded"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req ollamaChatRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.False(t, req.Stream)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewOllamaProvider(srv.URL, "llama3")
			resp, err := p.Chat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "hi"}})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, resp.Text)
			assert.Len(t, resp.ToolCalls, tt.wantToolCalls)
			if tt.wantToolCalls > 0 {
				assert.Equal(t, "web_search", resp.ToolCalls[0].Name)
				assert.JSONEq(t, `{"query":"news"}`, resp.ToolCalls[0].Arguments)
			}
		})
	}
}
