package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// OllamaProvider implements EmbeddingProvider for local Ollama models (e.g., nomic-embed-text)
type OllamaProvider struct {
	BaseURL string
	model   string
	client  *http.Client
}

func NewOllamaProvider(baseURL string, model string) EmbeddingProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaProvider{
		BaseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Ollama Embedding Request/Response structures
type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (p *OllamaProvider) Model() string {
	return p.model
}

func (p *OllamaProvider) Generate(ctx context.Context, text string, _ string) (*EmbeddingResponse, error) {
	jsonBody, err := json.Marshal(ollamaEmbeddingRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	var values []float32
	err = withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/api/embeddings", bytes.NewReader(jsonBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ollama embedding error: status %d, body %s", resp.StatusCode, string(bodyBytes))
		}

		var ollamaResp ollamaEmbeddingResponse
		if err := json.Unmarshal(bodyBytes, &ollamaResp); err != nil {
			return err
		}
		values = make([]float32, len(ollamaResp.Embedding))
		for i, v := range ollamaResp.Embedding {
			values[i] = float32(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Cosine distance in pgvector expects unit vectors.
	return &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: normalizeVector(values)}}, nil
}

func normalizeVector(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	normalized := make([]float32, len(vec))
	for i, v := range vec {
		normalized[i] = float32(float64(v) / magnitude)
	}
	return normalized
}
