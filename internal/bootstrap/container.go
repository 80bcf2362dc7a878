package bootstrap

import (
	"context"
	"fmt"
	"log"

	"edu-chatbot-be/internal/config"
	"edu-chatbot-be/internal/controller"
	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/internal/repository/contract"
	memcache "edu-chatbot-be/internal/repository/memory"
	rediscache "edu-chatbot-be/internal/repository/redis"
	"edu-chatbot-be/internal/repository/sessionstore"
	"edu-chatbot-be/internal/repository/unitofwork"
	"edu-chatbot-be/internal/repository/vectorindex"
	"edu-chatbot-be/internal/service"
	"edu-chatbot-be/pkg/database"
	"edu-chatbot-be/pkg/embedding"
	"edu-chatbot-be/pkg/llm"
	"edu-chatbot-be/pkg/llm/factory"
	"edu-chatbot-be/pkg/rag/agent"
	"edu-chatbot-be/pkg/rag/intent"
	"edu-chatbot-be/pkg/rag/language"
	"edu-chatbot-be/pkg/rag/memory"
	"edu-chatbot-be/pkg/rag/orchestrator"
	"edu-chatbot-be/pkg/rag/persona"
	"edu-chatbot-be/pkg/rag/retrieval"
	"edu-chatbot-be/pkg/rag/tools"
	"edu-chatbot-be/pkg/rag/validation"
	"edu-chatbot-be/pkg/rag/websearch"
	"edu-chatbot-be/pkg/tokenizer"

	pktNats "edu-chatbot-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const natsDurableName = "chat-persistence"

type Container struct {
	// Controllers
	ChatbotController controller.IChatbotController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	closers []func() error
}

func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	c := &Container{}
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	taskLogger := logger.NewIsolatedLogger(cfg.App.TaskLogFilePath)
	c.closers = append(c.closers, taskLogger.Sync, sysLogger.Sync)

	// 2. Providers, retrieval and web search
	kit, err := newToolkit(ctx, uowFactory, cfg, sysLogger, c)
	if err != nil {
		return nil, err
	}
	cache, llmProvider, counter, engine, webTool := kit.cache, kit.llm, kit.counter, kit.engine, kit.webTool

	// 3. Agents
	catalog, err := persona.Default()
	if err != nil {
		return nil, fmt.Errorf("persona catalog: %w", err)
	}
	var extra *tools.Registry
	if cfg.Rag.WebSearchEnabled {
		extra = tools.NewRegistry(webTool)
	}
	educational := agent.NewAgent(llmProvider, catalog, engine, extra, agent.Config{
		MaxIterations: cfg.Rag.MaxIterations,
		MaxTokens:     cfg.Ai.MainResponseTokens,
		MinScore:      cfg.Rag.ScoreThreshold,
	}, sysLogger)

	detector := language.NewDetector()
	classifier := intent.NewClassifier(llmProvider, intent.Config{
		CacheEnabled: cfg.Rag.EnableQueryCaching,
		CacheSize:    cfg.Rag.CacheSize,
		MaxTokens:    cfg.Ai.QueryAnalysisTokens,
	}, sysLogger)
	validator := validation.NewValidator(llmProvider, detector, validation.Config{
		Mode:      validation.Mode(cfg.Rag.ValidationMode),
		MaxTokens: cfg.Ai.ValidationTokens,
	}, sysLogger)

	// 4. Memory and background tasks
	queue, consumerFactory, eventPublisher, err := newQueue(cfg, sysLogger, c)
	if err != nil {
		return nil, err
	}
	memoryManager := memory.NewManager(
		cache,
		sessionstore.New(uowFactory),
		queue,
		llmProvider,
		counter,
		memory.Config{
			BufferSize:       cfg.Memory.BufferSize,
			TokenLimit:       cfg.Memory.TokenLimit,
			SummaryEvery:     cfg.Memory.SummaryEvery,
			SummaryWindow:    cfg.Memory.SummaryWindow,
			RestartThreshold: cfg.Memory.RestartThreshold,
		},
		sysLogger,
		memory.WithUsageStore(cache),
	)
	c.ConsumerService = consumerFactory(memoryManager, taskLogger)

	// 5. Turn pipeline
	orch := orchestrator.NewOrchestrator(orchestrator.Dependencies{
		Memory:         memoryManager,
		Classifier:     classifier,
		Retriever:      engine,
		WebSearch:      webTool,
		Educational:    educational,
		Conversational: agent.NewConversational(llmProvider, sysLogger),
		Validator:      validator,
		Translator:     language.NewTranslator(llmProvider, detector, sysLogger),
		Detector:       detector,
	}, orchestrator.Config{
		ParallelFetch:           cfg.Rag.ParallelRAGFetch,
		WebSearchEnabled:        cfg.Rag.WebSearchEnabled,
		MinScore:                cfg.Rag.ScoreThreshold,
		Thresholds:              retrieval.Thresholds{High: cfg.Rag.HighQualityThreshold, Medium: cfg.Rag.MediumQualityThreshold},
		TurnBudget:              cfg.App.TurnTimeout,
		ReactiveWebSearchBudget: cfg.Rag.ReactiveWebSearchBudget,
		WebSearchTimeout:        cfg.Rag.WebSearchTimeout,
		RetrievalTimeout:        cfg.Rag.RetrievalTimeout,
	}, sysLogger)

	chatbotService := service.NewChatbotService(
		orch,
		cache,
		memoryManager,
		eventPublisher,
		func(ctx context.Context) error { return database.Ping(ctx, db) },
		service.ChatbotConfig{TurnTimeout: cfg.App.TurnTimeout, LockTTL: cfg.App.SessionLockTTL},
		sysLogger,
	)

	// 6. Controllers
	c.ChatbotController = controller.NewChatbotController(chatbotService)
	return c, nil
}

// NewToolRegistry wires only the curriculum tools, for the MCP server. Logs
// go to the task log file so stdout stays free for the protocol.
func NewToolRegistry(ctx context.Context, db *gorm.DB, cfg *config.Config) (*tools.Registry, *Container, error) {
	c := &Container{}
	toolLogger := logger.NewIsolatedLogger(cfg.App.TaskLogFilePath)
	c.closers = append(c.closers, toolLogger.Sync)

	kit, err := newToolkit(ctx, unitofwork.NewRepositoryFactory(db), cfg, toolLogger, c)
	if err != nil {
		return nil, nil, err
	}

	registry := tools.NewRegistry(tools.NewRetrievalTool(kit.engine, cfg.Rag.ScoreThreshold, retrieval.IntentConceptExplanation))
	if cfg.Rag.WebSearchEnabled {
		registry.Register(kit.webTool)
	}
	return registry, c, nil
}

type toolkit struct {
	cache   contract.FastCache
	llm     llm.LLMProvider
	counter tokenizer.Counter
	engine  *retrieval.Engine
	webTool *tools.WebSearchTool
}

func newToolkit(ctx context.Context, uowFactory unitofwork.RepositoryFactory, cfg *config.Config, sysLogger logger.ILogger, c *Container) (*toolkit, error) {
	cache := newFastCache(ctx, cfg.App.RedisURL, c)

	embeddingProvider, err := newEmbeddingProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	embeddingProvider = embedding.NewCachedProvider(embeddingProvider, cache, func(op string, err error) {
		sysLogger.Warn("EMBEDDING", "Embedding cache unavailable", map[string]interface{}{"op": op, "error": err.Error()})
	})
	log.Printf("[INFO] Using Embedding Provider: %s (%s)", cfg.Ai.EmbeddingProvider, cfg.Ai.EmbeddingModel)

	llmProvider, err := newLLMProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	counter, exact := tokenizer.NewOrApprox(cfg.Ai.LLMModel)
	if !exact {
		log.Printf("[WARN] No tiktoken encoding for %s, using approximate token counts", cfg.Ai.LLMModel)
	}

	var sparse retrieval.SparseEncoder
	if cfg.Rag.BM25ParamsPath != "" {
		encoder, err := retrieval.LoadBM25Encoder(cfg.Rag.BM25ParamsPath)
		if err != nil {
			log.Printf("[WARN] BM25 params unavailable, retrieval is dense only: %v", err)
		} else {
			sparse = encoder
		}
	}
	engine := retrieval.NewEngine(
		embeddingProvider,
		vectorindex.NewPgvectorIndex(uowFactory),
		sparse,
		cache,
		retrieval.Config{TopK: cfg.Rag.TopK, Timeout: cfg.Rag.RetrievalTimeout},
		sysLogger,
	)

	var searcher websearch.Searcher
	if cfg.Ai.WebSearchProvider == "duckduckgo" {
		searcher = websearch.NewDuckDuckGoSearcher()
	} else {
		searcher = websearch.NewLLMSearcher(llmProvider, cfg.Ai.WebSearchModel)
	}

	return &toolkit{
		cache:   cache,
		llm:     llmProvider,
		counter: counter,
		engine:  engine,
		webTool: tools.NewWebSearchTool(websearch.NewCachedSearcher(searcher, cache), counter, cfg.Rag.WebSearchTimeout),
	}, nil
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() error {
	var result *multierror.Error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// newFastCache prefers Redis and falls back to an in-process cache, which
// only holds for a single replica.
func newFastCache(ctx context.Context, redisURL string, c *Container) contract.FastCache {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: redisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v. Using in-memory cache", err)
		_ = rdb.Close()
		return memcache.NewFastCache()
	}
	c.closers = append(c.closers, rdb.Close)
	return rediscache.NewFastCache(rdb)
}

func newEmbeddingProvider(ctx context.Context, cfg *config.Config) (embedding.EmbeddingProvider, error) {
	switch cfg.Ai.EmbeddingProvider {
	case "ollama":
		return embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel), nil
	case "gemini":
		return embedding.NewGeminiProvider(ctx, cfg.Keys.GoogleGemini, cfg.Ai.EmbeddingModel, cfg.Ai.EmbeddingDimensions)
	case "openai":
		if cfg.Keys.OpenAI == "" {
			return nil, fmt.Errorf("openai embeddings require OPENAI_API_KEY")
		}
		return embedding.NewOpenAIProvider(cfg.Keys.OpenAI, cfg.Keys.OpenAIBaseURL, cfg.Ai.EmbeddingModel, cfg.Ai.EmbeddingDimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Ai.EmbeddingProvider)
	}
}

func newLLMProvider(cfg *config.Config) (llm.LLMProvider, error) {
	baseURL := cfg.Keys.OpenAIBaseURL
	if cfg.Ai.LLMProvider == "ollama" {
		baseURL = cfg.Ai.OllamaBaseURL
	}
	return factory.NewLLMProvider(factory.Config{
		Provider: cfg.Ai.LLMProvider,
		Model:    cfg.Ai.LLMModel,
		BaseURL:  baseURL,
		APIKey:   cfg.Keys.OpenAI,
	})
}

type consumerFactory func(handler service.TaskHandler, logger logger.ILogger) service.IConsumerService

// newQueue wires the background task queue. Turn-completed events go to NATS
// whenever it is reachable, whatever the task backend.
func newQueue(cfg *config.Config, sysLogger logger.ILogger, c *Container) (memory.TaskQueue, consumerFactory, service.EventPublisher, error) {
	if cfg.Queue.Backend == "nats" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("nats publisher: %w", err)
		}
		c.closers = append(c.closers, natsPub.Close)
		natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL, sysLogger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("nats subscriber: %w", err)
		}
		c.closers = append(c.closers, natsSub.Close)

		return service.NewNatsPublisherService(natsPub),
			func(h service.TaskHandler, l logger.ILogger) service.IConsumerService {
				return service.NewNatsConsumerService(natsSub, natsDurableName, h, l)
			},
			natsPub,
			nil
	}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewStdLogger(false, false),
	)
	c.closers = append(c.closers, pubSub.Close)

	var eventPublisher service.EventPublisher
	if natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger); err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v. Turn events are not published", err)
	} else {
		c.closers = append(c.closers, natsPub.Close)
		eventPublisher = natsPub
	}

	return service.NewPublisherService(cfg.Queue.PersistTopic, pubSub),
		func(h service.TaskHandler, l logger.ILogger) service.IConsumerService {
			return service.NewConsumerService(pubSub, cfg.Queue.PersistTopic, h, l)
		},
		eventPublisher,
		nil
}
