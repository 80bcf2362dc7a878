package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"edu-chatbot-be/internal/pkg/logger"
	"edu-chatbot-be/pkg/embedding"
	"edu-chatbot-be/pkg/store"
)

const module = "RETRIEVAL"

type Intent string

const (
	IntentConceptExplanation Intent = "concept_explanation"
	IntentHomeworkHelp       Intent = "homework_help"
	IntentExamPrep           Intent = "exam_prep"
	IntentDoubtResolution    Intent = "doubt_resolution"
	IntentOffTopic           Intent = "off_topic"
)

// AlphaFor weights dense against sparse scores. Conceptual questions lean
// semantic, homework questions lean lexical.
func AlphaFor(intent Intent) float64 {
	switch intent {
	case IntentConceptExplanation:
		return 0.7
	case IntentHomeworkHelp:
		return 0.4
	case IntentExamPrep:
		return 0.5
	default:
		return 0.6
	}
}

// VectorQuery is what the engine sends to the index. Sparse is nil for
// dense-only search.
type VectorQuery struct {
	Dense     []float32
	Sparse    map[int32]float32
	SparseDim int32
	Alpha     float64
	TopK      int
	Filter    map[string]map[string]interface{}
}

type Match struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]interface{}
}

// VectorIndex is the external vector search service.
type VectorIndex interface {
	Name() string
	Query(ctx context.Context, q VectorQuery) ([]Match, error)
}

// Cache is the key/value slice of the fast cache used for result caching.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type Config struct {
	TopK      int
	Timeout   time.Duration
	ResultTTL time.Duration
}

type Engine struct {
	embedder embedding.EmbeddingProvider
	index    VectorIndex
	sparse   SparseEncoder
	cache    Cache
	cfg      Config
	logger   logger.ILogger
}

// NewEngine builds the hybrid retriever. sparse and cache may be nil.
func NewEngine(
	embedder embedding.EmbeddingProvider,
	index VectorIndex,
	sparse SparseEncoder,
	cache Cache,
	cfg Config,
	logger logger.ILogger,
) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	return &Engine{
		embedder: embedder,
		index:    index,
		sparse:   sparse,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve returns documents ordered by descending score. Upstream failures
// are logged and yield an empty list.
func (e *Engine) Retrieve(ctx context.Context, query string, filters map[string]interface{}, intent Intent) []store.Document {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	alpha := AlphaFor(intent)
	normalized := NormalizeFilters(filters)
	key := e.cacheKey(query, normalized, intent, alpha)

	if docs, ok := e.cached(ctx, key); ok {
		e.logger.Debug(module, "Result cache hit", map[string]interface{}{"query": query, "docs": len(docs)})
		return docs
	}

	emb, err := e.embedder.Generate(ctx, query, embedding.TaskRetrievalQuery)
	if err != nil || emb == nil || len(emb.Embedding.Values) == 0 {
		e.logger.Error(module, "Query embedding failed", map[string]interface{}{"error": fmt.Sprint(err)})
		return nil
	}

	vq := VectorQuery{
		Dense:  emb.Embedding.Values,
		Alpha:  alpha,
		TopK:   e.cfg.TopK,
		Filter: normalized,
	}
	if e.sparse != nil {
		sv, err := e.sparse.EncodeQuery(query)
		if err != nil {
			e.logger.Warn(module, "Sparse encoding failed, using dense only", map[string]interface{}{"error": err.Error()})
		} else if len(sv) > 0 {
			vq.Sparse = sv
			vq.SparseDim = e.sparse.Dimension()
		}
	}

	start := time.Now()
	matches, err := e.index.Query(ctx, vq)
	if err != nil {
		e.logger.Error(module, "Vector search failed", map[string]interface{}{
			"error":  err.Error(),
			"index":  e.index.Name(),
			"filter": describeFilters(normalized),
		})
		return nil
	}

	docs := make([]store.Document, 0, len(matches))
	for _, m := range matches {
		docs = append(docs, store.Document{ID: m.ID, Score: m.Score, Text: m.Text, Metadata: m.Metadata})
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })

	e.logger.Info(module, "Retrieved documents", map[string]interface{}{
		"docs":        len(docs),
		"alpha":       alpha,
		"hybrid":      vq.Sparse != nil,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if len(docs) > 0 {
		e.store(ctx, key, docs)
	}
	return docs
}

func (e *Engine) cacheKey(query string, filters map[string]map[string]interface{}, intent Intent, alpha float64) string {
	canonical, _ := json.Marshal(filters)
	parts := []string{
		strings.ToLower(strings.TrimSpace(query)),
		string(canonical),
		string(intent),
		e.index.Name(),
		e.embedder.Model(),
		fmt.Sprintf("%d", e.cfg.TopK),
		fmt.Sprintf("%.2f", alpha),
		fmt.Sprintf("%t", e.sparse != nil),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "rag_res:" + hex.EncodeToString(sum[:])
}

func (e *Engine) cached(ctx context.Context, key string) ([]store.Document, bool) {
	if e.cache == nil {
		return nil, false
	}
	raw, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn(module, "Result cache read failed", map[string]interface{}{"error": err.Error()})
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var docs []store.Document
	if err := json.Unmarshal([]byte(raw), &docs); err != nil || len(docs) == 0 {
		return nil, false
	}
	return docs, true
}

func (e *Engine) store(ctx context.Context, key string, docs []store.Document) {
	if e.cache == nil {
		return
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, string(raw), e.cfg.ResultTTL); err != nil {
		e.logger.Warn(module, "Result cache write failed", map[string]interface{}{"error": err.Error()})
	}
}
