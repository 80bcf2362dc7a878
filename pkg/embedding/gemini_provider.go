package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

type GeminiProvider struct {
	client     *genai.Client
	model      string
	dimensions int
}

func NewGeminiProvider(ctx context.Context, apiKey, model string, dimensions int) (EmbeddingProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &GeminiProvider{client: client, model: model, dimensions: dimensions}, nil
}

func (p *GeminiProvider) Model() string {
	return p.model
}

func (p *GeminiProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	if taskType == "" {
		taskType = TaskRetrievalQuery
	}
	cfg := &genai.EmbedContentConfig{TaskType: taskType}
	if p.dimensions > 0 {
		dims := int32(p.dimensions)
		cfg.OutputDimensionality = &dims
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	var values []float32
	err := withRetry(ctx, func() error {
		result, err := p.client.Models.EmbedContent(ctx, p.model, contents, cfg)
		if err != nil {
			return err
		}
		if len(result.Embeddings) == 0 {
			return fmt.Errorf("gemini returned no embeddings")
		}
		values = result.Embeddings[0].Values
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}

	// Reduced-dimension Gemini vectors are not unit length.
	return &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: normalizeVector(values)}}, nil
}
