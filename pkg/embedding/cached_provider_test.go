package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapKV struct {
	mu   sync.Mutex
	data map[string]string
	fail bool
}

func (m *mapKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return "", false, errors.New("cache down")
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("cache down")
	}
	m.data[key] = value
	return nil
}

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) Model() string { return "test-model" }

func (p *countingProvider) Generate(_ context.Context, _ string, _ string) (*EmbeddingResponse, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &EmbeddingResponse{Embedding: EmbeddingResponseEmbedding{Values: []float32{0.6, 0.8}}}, nil
}

func TestCachedProvider(t *testing.T) {
	t.Run("second call is served from cache with normalized key", func(t *testing.T) {
		inner := &countingProvider{}
		c := NewCachedProvider(inner, &mapKV{data: map[string]string{}}, nil)

		first, err := c.Generate(context.Background(), "  Photosynthesis ", TaskRetrievalQuery)
		require.NoError(t, err)
		second, err := c.Generate(context.Background(), "photosynthesis", TaskRetrievalQuery)
		require.NoError(t, err)

		assert.Equal(t, 1, inner.calls)
		assert.Equal(t, first.Embedding.Values, second.Embedding.Values)
	})

	t.Run("cache failure falls through to provider", func(t *testing.T) {
		inner := &countingProvider{}
		var errs []string
		c := NewCachedProvider(inner, &mapKV{data: map[string]string{}, fail: true}, func(op string, _ error) {
			errs = append(errs, op)
		})

		_, err := c.Generate(context.Background(), "x", TaskRetrievalQuery)
		require.NoError(t, err)
		assert.Equal(t, 1, inner.calls)
		assert.Equal(t, []string{"get", "set"}, errs)
	})

	t.Run("provider error propagates", func(t *testing.T) {
		inner := &countingProvider{err: errors.New("quota")}
		c := NewCachedProvider(inner, &mapKV{data: map[string]string{}}, nil)
		_, err := c.Generate(context.Background(), "x", TaskRetrievalQuery)
		assert.Error(t, err)
	})
}

func TestCacheKeyIsModelScoped(t *testing.T) {
	assert.NotEqual(t, CacheKey("a", "text"), CacheKey("b", "text"))
	assert.Equal(t, CacheKey("a", "Text "), CacheKey("a", "text"))
}

func TestNormalizeVector(t *testing.T) {
	out := normalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, out[0], 1e-6)
	assert.InDelta(t, 0.8, out[1], 1e-6)
	assert.Equal(t, []float32{0, 0}, normalizeVector([]float32{0, 0}))
}
