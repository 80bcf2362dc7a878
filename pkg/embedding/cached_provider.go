package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const embeddingCacheTTL = 24 * time.Hour

// KV is the slice of the fast cache the embedding cache needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// CachedProvider memoizes embeddings by model and normalized text.
type CachedProvider struct {
	inner EmbeddingProvider
	cache KV
	onErr func(op string, err error)
}

func NewCachedProvider(inner EmbeddingProvider, cache KV, onErr func(op string, err error)) *CachedProvider {
	if onErr == nil {
		onErr = func(string, error) {}
	}
	return &CachedProvider{inner: inner, cache: cache, onErr: onErr}
}

func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return fmt.Sprintf("embed:%s:%s", model, hex.EncodeToString(sum[:]))
}

func (c *CachedProvider) Model() string {
	return c.inner.Model()
}

func (c *CachedProvider) Generate(ctx context.Context, text string, taskType string) (*EmbeddingResponse, error) {
	key := CacheKey(c.inner.Model(), text)

	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		c.onErr("get", err)
	} else if ok {
		var values []float32
		if err := json.Unmarshal([]byte(raw), &values); err == nil && len(values) > 0 {
			return &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: values}}, nil
		}
	}

	res, err := c.inner.Generate(ctx, text, taskType)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(res.Embedding.Values); err == nil {
		if err := c.cache.Set(ctx, key, string(raw), embeddingCacheTTL); err != nil {
			c.onErr("set", err)
		}
	}
	return res, nil
}
