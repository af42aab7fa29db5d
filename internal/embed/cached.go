package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of embeddings kept in memory.
const DefaultCacheSize = 4096

// CachedEmbedder wraps an Embedder with an in-memory LRU cache.
// Document and query embeddings are cached under distinct keys because
// query-side formatting can produce different vectors for identical text.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps inner with an LRU cache of the given size.
func NewCachedEmbedder(inner Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// cacheKey hashes the text with the kind and model so a model switch never
// serves stale vectors.
func (c *CachedEmbedder) cacheKey(kind, text string) string {
	h := sha256.Sum256([]byte(kind + "\x00" + c.inner.ModelName() + "\x00" + text))
	return hex.EncodeToString(h[:16])
}

// EmbedDocuments returns cached vectors where present and embeds only the
// misses, preserving input order.
func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey("doc", text)); ok {
			results[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	slog.Debug("embedding cache",
		slog.Int("hits", len(texts)-len(missTexts)),
		slog.Int("misses", len(missTexts)))

	vecs, err := c.inner.EmbedDocuments(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, vec := range vecs {
		i := missIdx[j]
		results[i] = vec
		c.cache.Add(c.cacheKey("doc", texts[i]), vec)
	}

	return results, nil
}

// EmbedQuery returns the cached query vector or embeds and caches it.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey("query", text)
	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// Dimensions delegates to the wrapped embedder.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// ModelName delegates to the wrapped embedder.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// Available delegates to the wrapped embedder.
func (c *CachedEmbedder) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close purges the cache and closes the wrapped embedder.
func (c *CachedEmbedder) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}
