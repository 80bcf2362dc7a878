package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

type OpenAIProvider struct {
	client     openai.Client
	model      string
	dimensions int
}

func NewOpenAIProvider(apiKey, baseURL, model string, dimensions int) EmbeddingProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "text-embedding-3-large"
	}
	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		model:      model,
		dimensions: dimensions,
	}
}

func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) Generate(ctx context.Context, text string, _ string) (*EmbeddingResponse, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.dimensions))
	}

	var values []float32
	err := withRetry(ctx, func() error {
		res, err := p.client.Embeddings.New(ctx, params)
		if err != nil {
			return err
		}
		if len(res.Data) == 0 {
			return fmt.Errorf("openai returned no embeddings")
		}
		values = make([]float32, len(res.Data[0].Embedding))
		for i, v := range res.Data[0].Embedding {
			values[i] = float32(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}

	return &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: values}}, nil
}
