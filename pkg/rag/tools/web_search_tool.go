package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"edu-chatbot-be/pkg/rag/websearch"
	"edu-chatbot-be/pkg/tokenizer"
)

const webResultTokens = 300

type WebSearchTool struct {
	searcher websearch.Searcher
	counter  tokenizer.Counter
	timeout  time.Duration
}

func NewWebSearchTool(searcher websearch.Searcher, counter tokenizer.Counter, timeout time.Duration) *WebSearchTool {
	if counter == nil {
		counter = tokenizer.ApproxCounter{}
	}
	return &WebSearchTool{searcher: searcher, counter: counter, timeout: timeout}
}

func (t *WebSearchTool) Name() string { return WebSearch }

func (t *WebSearchTool) Description() string {
	return "Search the web for current or general information that the curriculum does not cover."
}

func (t *WebSearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "The web search query",
			},
		},
		"required": []string{"query"},
	}
}

// Execute never returns an error for upstream failures; the failure is
// reported to the model as the observation.
func (t *WebSearchTool) Execute(ctx context.Context, args map[string]interface{}) (Observation, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return Observation{}, fmt.Errorf("missing required argument 'query'")
	}
	return Observation{Text: t.Search(ctx, query)}, nil
}

func (t *WebSearchTool) Search(ctx context.Context, query string) string {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	res, err := t.searcher.Search(ctx, query)
	if err != nil {
		return fmt.Sprintf("Web search failed: Could not retrieve results for '%s'. Error: %s", query, err.Error())
	}
	return fmt.Sprintf("WEB_SEARCH_OBSERVATION for '%s':\n%s", query, t.counter.Truncate(res, webResultTokens))
}
