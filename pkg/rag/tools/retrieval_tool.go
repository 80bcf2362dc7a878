package tools

import (
	"context"
	"fmt"
	"strings"

	"edu-chatbot-be/pkg/rag/citation"
	"edu-chatbot-be/pkg/rag/retrieval"
	"edu-chatbot-be/pkg/store"
)

// NoDocsPrefix marks a retrieval observation that found nothing usable.
const NoDocsPrefix = "NO_DOCS_FOUND"

type Retriever interface {
	Retrieve(ctx context.Context, query string, filters map[string]interface{}, intent retrieval.Intent) []store.Document
}

// RetrievalTool searches the curriculum. Only documents at or above
// MinScore are shown to the model.
type RetrievalTool struct {
	retriever Retriever
	minScore  float64
	intent    retrieval.Intent
}

func NewRetrievalTool(retriever Retriever, minScore float64, intent retrieval.Intent) *RetrievalTool {
	if intent == "" {
		intent = retrieval.IntentConceptExplanation
	}
	return &RetrievalTool{retriever: retriever, minScore: minScore, intent: intent}
}

func (t *RetrievalTool) Name() string { return RetrieveDocuments }

func (t *RetrievalTool) Description() string {
	return "Search the curriculum materials (lecture transcripts and notes) for passages relevant to a question. " +
		"Use this first for any educational question."
}

func (t *RetrievalTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "A focused English search query",
			},
			"filters": map[string]interface{}{
				"type":        "object",
				"description": "Optional metadata filters",
			},
		},
		"required": []string{"query"},
	}
}

func (t *RetrievalTool) Execute(ctx context.Context, args map[string]interface{}) (Observation, error) {
	query := strings.TrimSpace(stringArg(args, "query"))
	if query == "" {
		return Observation{}, fmt.Errorf("missing required argument 'query'")
	}
	filters, _ := args["filters"].(map[string]interface{})

	docs := retrieval.Visible(t.retriever.Retrieve(ctx, query, filters, t.intent), t.minScore)
	return RetrievalObservation(query, docs), nil
}

// RetrievalObservation formats already-visible documents the same way the
// tool does, so prefetched results cite identically.
func RetrievalObservation(query string, visible []store.Document) Observation {
	if len(visible) == 0 {
		return Observation{Text: fmt.Sprintf("%s: no curriculum material matched '%s'.", NoDocsPrefix, query)}
	}
	return Observation{Text: citation.Format(visible), Documents: visible}
}
