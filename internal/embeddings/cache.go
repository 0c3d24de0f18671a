package embeddings

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEmbedder memoizes vectors per text. It serves repeated queries; a
// build embeds every chunk once and gains nothing from it.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

// WithCache wraps e with an LRU cache of the given size. size <= 0 returns
// e unchanged.
func WithCache(e Embedder, size int) (Embedder, error) {
	if size <= 0 {
		return e, nil
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: e, cache: c}, nil
}

func (c *CachedEmbedder) Name() string    { return c.inner.Name() }
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// Embed answers cached texts locally and forwards the rest in one call.
func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("%s returned %d vectors for %d texts", c.inner.Name(), len(vecs), len(missing))
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		c.cache.Add(missing[j], v)
	}
	return out, nil
}

// Len reports the number of cached texts.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }
