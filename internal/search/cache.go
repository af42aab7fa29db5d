package search

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache holds one BM25 index per figure, rebuilt lazily from the figure's
// chunk token lists. Mutating a figure invalidates its entry (memory and
// disk); the next search triggers a rebuild. Concurrent searches during a
// rebuild share a single flight.
type Cache struct {
	dir string

	mu      sync.RWMutex
	indexes map[string]*BM25Index

	flight   singleflight.Group
	rebuilds atomic.Int64
}

// NewCache creates a cache persisting indexes under dir.
func NewCache(dir string) *Cache {
	return &Cache{
		dir:     dir,
		indexes: make(map[string]*BM25Index),
	}
}

// Ensure returns the figure's index, loading it from disk or rebuilding it
// from the token lists load() yields. The returned index may be empty (zero
// documents) when the figure has no tokenized chunks; callers fall back to
// dense-only retrieval.
func (c *Cache) Ensure(ctx context.Context, figureID string, load func() (map[string][]string, error)) (*BM25Index, error) {
	c.mu.RLock()
	idx, ok := c.indexes[figureID]
	c.mu.RUnlock()
	if ok {
		return idx, nil
	}

	v, err, _ := c.flight.Do(figureID, func() (any, error) {
		// Another flight may have populated the entry while this call
		// waited for the group slot.
		c.mu.RLock()
		idx, ok := c.indexes[figureID]
		c.mu.RUnlock()
		if ok {
			return idx, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		idx, err := c.loadOrRebuild(figureID, load)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.indexes[figureID] = idx
		c.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*BM25Index), nil
}

func (c *Cache) loadOrRebuild(figureID string, load func() (map[string][]string, error)) (*BM25Index, error) {
	idx, err := loadIndex(c.dir, figureID)
	if err != nil {
		slog.Warn("discarding unreadable sparse index",
			slog.String("figure_id", figureID),
			slog.String("error", err.Error()))
		_ = removeIndexFiles(c.dir, figureID)
	} else if idx != nil {
		slog.Debug("sparse index loaded from disk",
			slog.String("figure_id", figureID),
			slog.Int("docs", idx.Len()))
		return idx, nil
	}

	start := time.Now()
	tokens, err := load()
	if err != nil {
		return nil, err
	}

	idx = NewBM25Index()
	for docID, toks := range tokens {
		if len(toks) == 0 {
			continue
		}
		idx.Add(docID, toks)
	}

	c.rebuilds.Add(1)

	if err := idx.save(c.dir, figureID); err != nil {
		// A failed save costs a rebuild next process start, nothing more.
		slog.Warn("persisting sparse index failed",
			slog.String("figure_id", figureID),
			slog.String("error", err.Error()))
	}

	slog.Info("sparse index rebuilt",
		slog.String("figure_id", figureID),
		slog.Int("docs", idx.Len()),
		slog.Duration("took", time.Since(start)))

	return idx, nil
}

// Invalidate drops the figure's index from memory and disk. The next search
// rebuilds it.
func (c *Cache) Invalidate(figureID string) {
	c.mu.Lock()
	delete(c.indexes, figureID)
	c.mu.Unlock()

	if err := removeIndexFiles(c.dir, figureID); err != nil {
		slog.Warn("removing sparse index files failed",
			slog.String("figure_id", figureID),
			slog.String("error", err.Error()))
	}

	slog.Debug("sparse index invalidated", slog.String("figure_id", figureID))
}

// Rebuilds returns the number of rebuilds performed since start.
func (c *Cache) Rebuilds() int64 {
	return c.rebuilds.Load()
}
