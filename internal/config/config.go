package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Rag      RagConfig
	Memory   MemoryConfig
	Queue    QueueConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	TaskLogFilePath    string
	CorsAllowedOrigins string
	AuthRequired       bool
	NatsURL            string
	RedisURL           string
	TurnTimeout        time.Duration
	SessionLockTTL     time.Duration
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	OpenAI        string
	OpenAIBaseURL string
	GoogleGemini  string
}

type AIConfig struct {
	LLMProvider         string // "openai" or "ollama"
	LLMModel            string
	EmbeddingProvider   string // "openai", "gemini" or "ollama"
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaBaseURL       string
	WebSearchProvider   string // "llm" or "duckduckgo"
	WebSearchModel      string
	QueryAnalysisTokens int
	MainResponseTokens  int
	ValidationTokens    int
}

type RagConfig struct {
	MaxIterations           int
	TopK                    int
	ScoreThreshold          float64
	HighQualityThreshold    float64
	MediumQualityThreshold  float64
	BM25ParamsPath          string
	ValidationMode          string // "disabled", "fast", "strict"
	WebSearchEnabled        bool
	ParallelRAGFetch        bool
	EnableQueryCaching      bool
	CacheSize               int
	RetrievalTimeout        time.Duration
	WebSearchTimeout        time.Duration
	ReactiveWebSearchBudget float64
}

type MemoryConfig struct {
	BufferSize       int
	TokenLimit       int
	SummaryEvery     int
	SummaryWindow    int
	RestartThreshold time.Duration
}

type QueueConfig struct {
	Backend      string // "gochannel" or "nats"
	PersistTopic string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			TaskLogFilePath:    getEnv("TASK_LOG_FILE_PATH", "logs/tasks.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AuthRequired:       getEnvAsBool("AUTH_REQUIRED", false),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			TurnTimeout:        getEnvAsDuration("TURN_TIMEOUT", 60*time.Second),
			SessionLockTTL:     getEnvAsDuration("SESSION_LOCK_TTL", 300*time.Second),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			OpenAI:        getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			GoogleGemini:  getEnv("GOOGLE_GEMINI_API_KEY", ""),
		},
		Ai: AIConfig{
			LLMProvider:         getEnv("LLM_PROVIDER", "openai"),
			LLMModel:            getEnv("LLM_MODEL", "gpt-4o-mini"),
			EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "openai"),
			EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-large"),
			EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 1536),
			OllamaBaseURL:       getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			WebSearchProvider:   getEnv("WEB_SEARCH_PROVIDER", "llm"),
			WebSearchModel:      getEnv("WEB_SEARCH_MODEL", "gpt-4o-mini-search-preview"),
			QueryAnalysisTokens: getEnvAsInt("QUERY_ANALYSIS_TOKENS", 100),
			MainResponseTokens:  getEnvAsInt("MAIN_RESPONSE_TOKENS", 2000),
			ValidationTokens:    getEnvAsInt("VALIDATION_TOKENS", 300),
		},
		Rag: RagConfig{
			MaxIterations:           getEnvAsInt("MAX_ITERATIONS", 5),
			TopK:                    getEnvAsInt("RETRIEVER_TOP_K", 5),
			ScoreThreshold:          getEnvAsFloat("SCORE_THRESHOLD", 0.4),
			HighQualityThreshold:    getEnvAsFloat("HIGH_QUALITY_THRESHOLD", 0.85),
			MediumQualityThreshold:  getEnvAsFloat("MEDIUM_QUALITY_THRESHOLD", 0.7),
			BM25ParamsPath:          getEnv("BM25_PARAMS_PATH", ""),
			ValidationMode:          getEnv("VALIDATION_MODE", "fast"),
			WebSearchEnabled:        getEnvAsBool("WEB_SEARCH_ENABLED", true),
			ParallelRAGFetch:        getEnvAsBool("PARALLEL_RAG_FETCH", true),
			EnableQueryCaching:      getEnvAsBool("ENABLE_QUERY_CACHING", true),
			CacheSize:               getEnvAsInt("CACHE_SIZE", 1000),
			RetrievalTimeout:        getEnvAsDuration("RETRIEVAL_TIMEOUT", 10*time.Second),
			WebSearchTimeout:        getEnvAsDuration("WEB_SEARCH_TIMEOUT", 15*time.Second),
			ReactiveWebSearchBudget: getEnvAsFloat("REACTIVE_WEB_SEARCH_BUDGET", 0.25),
		},
		Memory: MemoryConfig{
			BufferSize:       getEnvAsInt("MEMORY_BUFFER_SIZE", 20),
			TokenLimit:       getEnvAsInt("MEMORY_TOKEN_LIMIT", 2000),
			SummaryEvery:     getEnvAsInt("SUMMARY_EVERY", 10),
			SummaryWindow:    getEnvAsInt("SUMMARY_WINDOW", 20),
			RestartThreshold: getEnvAsDuration("RESTART_THRESHOLD", 2*time.Hour),
		},
		Queue: QueueConfig{
			Backend:      getEnv("QUEUE_BACKEND", "gochannel"),
			PersistTopic: getEnv("PERSIST_TOPIC", "chat_persistence"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if seconds, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
