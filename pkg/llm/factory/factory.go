package factory

import (
	"fmt"

	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/llm/ollama"
	"edu-chatbot-be/pkg/llm/openai"
)

type Config struct {
	Provider string
	Model    string
	BaseURL  string
	APIKey   string
}

func NewLLMProvider(cfg Config) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return openai.NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
