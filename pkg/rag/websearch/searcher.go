package websearch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"edu-chatbot-be/pkg/llm"

	"github.com/avast/retry-go/v4"
)

// Searcher answers a query from the open web as plain text.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

func withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// LLMSearcher delegates to a search-capable chat model.
type LLMSearcher struct {
	provider llm.LLMProvider
	model    string
}

func NewLLMSearcher(provider llm.LLMProvider, model string) *LLMSearcher {
	return &LLMSearcher{provider: provider, model: model}
}

func (s *LLMSearcher) Search(ctx context.Context, query string) (string, error) {
	prompt := fmt.Sprintf(
		"Search the web and report concise, factual findings for the query below. "+
			"Attribute each fact to its source (site name or URL). Keep it under 200 words.\n\nQuery: %s", query)

	var text string
	err := withRetry(ctx, func() error {
		opts := []llm.Option{}
		if s.model != "" {
			opts = append(opts, llm.WithModel(s.model))
		}
		res, err := s.provider.Generate(ctx, prompt, opts...)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(res.Text)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("llm web search: %w", err)
	}
	if text == "" {
		return "", fmt.Errorf("llm web search: empty result")
	}
	return text, nil
}

// KV is the key/value slice of the fast cache.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

const searchCacheTTL = 24 * time.Hour

// CachedSearcher memoizes successful searches by normalized query.
type CachedSearcher struct {
	inner Searcher
	cache KV
}

func NewCachedSearcher(inner Searcher, cache KV) *CachedSearcher {
	return &CachedSearcher{inner: inner, cache: cache}
}

func CacheKey(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.Join(strings.Fields(query), " "))))
	return "web_search:" + hex.EncodeToString(sum[:])
}

func (s *CachedSearcher) Search(ctx context.Context, query string) (string, error) {
	key := CacheKey(query)
	if v, ok, err := s.cache.Get(ctx, key); err == nil && ok && v != "" {
		return v, nil
	}
	res, err := s.inner.Search(ctx, query)
	if err != nil {
		return "", err
	}
	_ = s.cache.Set(ctx, key, res, searchCacheTTL)
	return res, nil
}
