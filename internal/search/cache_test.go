package search

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokensLoader(tokens map[string][]string) func() (map[string][]string, error) {
	return func() (map[string][]string, error) {
		return tokens, nil
	}
}

func TestCacheRebuildOnFirstEnsure(t *testing.T) {
	cache := NewCache(t.TempDir())

	idx, err := cache.Ensure(context.Background(), "napoleon", tokensLoader(map[string][]string{
		"napoleon_aaa": {"waterloo", "battle"},
		"napoleon_bbb": {"exile", "elba"},
	}))
	require.NoError(t, err)

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, int64(1), cache.Rebuilds())

	// Second call hits the memory entry.
	again, err := cache.Ensure(context.Background(), "napoleon", tokensLoader(nil))
	require.NoError(t, err)
	assert.Same(t, idx, again)
	assert.Equal(t, int64(1), cache.Rebuilds())
}

func TestCacheLoadsFromDisk(t *testing.T) {
	dir := t.TempDir()

	first := NewCache(dir)
	_, err := first.Ensure(context.Background(), "ada", tokensLoader(map[string][]string{
		"ada_aaa": {"engine", "analytical"},
	}))
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Rebuilds())

	// A fresh cache (new process) reads the persisted files instead of
	// rebuilding.
	second := NewCache(dir)
	idx, err := second.Ensure(context.Background(), "ada", func() (map[string][]string, error) {
		t.Fatal("loader must not run when disk files are valid")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, int64(0), second.Rebuilds())
	assert.Len(t, idx.Search([]string{"engine"}, 10), 1)
}

func TestCacheInvalidateForcesRebuild(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir)
	ctx := context.Background()

	_, err := cache.Ensure(ctx, "marx", tokensLoader(map[string][]string{
		"marx_aaa": {"capital"},
	}))
	require.NoError(t, err)

	cache.Invalidate("marx")

	idx, err := cache.Ensure(ctx, "marx", tokensLoader(map[string][]string{
		"marx_aaa": {"capital"},
		"marx_bbb": {"manifesto"},
	}))
	require.NoError(t, err)

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, int64(2), cache.Rebuilds())
}

func TestCacheInvalidateIsIdempotent(t *testing.T) {
	cache := NewCache(t.TempDir())

	cache.Invalidate("ghost")
	cache.Invalidate("ghost")
	assert.Equal(t, int64(0), cache.Rebuilds())
}

func TestCacheEmptyTokens(t *testing.T) {
	cache := NewCache(t.TempDir())

	idx, err := cache.Ensure(context.Background(), "empty", tokensLoader(map[string][]string{
		"empty_aaa": {},
	}))
	require.NoError(t, err)

	// Chunks without tokens yield an empty index; search falls back to
	// dense-only.
	assert.Equal(t, 0, idx.Len())
}

func TestCacheConcurrentEnsureRebuildsOnce(t *testing.T) {
	cache := NewCache(t.TempDir())
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, err := cache.Ensure(ctx, "einstein", tokensLoader(map[string][]string{
				"einstein_aaa": {"relativity"},
			}))
			assert.NoError(t, err)
			assert.NotNil(t, idx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), cache.Rebuilds())
}
