package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/figurechat/figurechat/internal/config"
	"github.com/figurechat/figurechat/internal/embed"
	ferrors "github.com/figurechat/figurechat/internal/errors"
	"github.com/figurechat/figurechat/internal/textproc"
	"github.com/figurechat/figurechat/internal/vector"
)

// Result is one hybrid search hit.
type Result struct {
	DocumentID string                `json:"document_id"`
	Text       string                `json:"text"`
	Metadata   vector.ChunkMetadata  `json:"metadata"`

	CosineSimilarity float64 `json:"cosine_similarity"`
	BM25Score        float64 `json:"bm25_score"`
	RRFScore         float64 `json:"rrf_score"`

	// TopMatchingWords are the query terms that contributed most BM25
	// score, bigrams rendered with a space. Empty for dense-only hits.
	TopMatchingWords []string `json:"top_matching_words,omitempty"`

	// VectorRank and BM25Rank are 1-based ranks in each retrieval list,
	// 0 when the document was absent from that list.
	VectorRank int `json:"vector_rank,omitempty"`
	BM25Rank   int `json:"bm25_rank,omitempty"`
}

// Engine runs the per-figure hybrid retrieval pipeline.
type Engine struct {
	store    *vector.Store
	cache    *Cache
	embedder embed.Embedder
	proc     *textproc.Processor
	cfg      config.SearchConfig
}

// NewEngine wires the pipeline together.
func NewEngine(store *vector.Store, cache *Cache, embedder embed.Embedder, proc *textproc.Processor, cfg config.SearchConfig) *Engine {
	return &Engine{
		store:    store,
		cache:    cache,
		embedder: embedder,
		proc:     proc,
		cfg:      cfg,
	}
}

// Cache exposes the BM25 cache for invalidation by mutation paths.
func (e *Engine) Cache() *Cache { return e.cache }

// Search runs the hybrid pipeline with the configured similarity floor.
func (e *Engine) Search(ctx context.Context, figureID, query string, nResults int) ([]Result, error) {
	return e.SearchWithFloor(ctx, figureID, query, nResults, e.cfg.MinCosineSimilarity)
}

// SearchWithFloor runs dense and sparse retrieval in parallel, fuses with
// RRF, re-filters by the given cosine similarity floor, and returns the top
// nResults. An empty query yields an empty result list.
func (e *Engine) SearchWithFloor(ctx context.Context, figureID, query string, nResults int, minSimilarity float64) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}
	if nResults <= 0 {
		nResults = e.cfg.DefaultNResults
	}
	if minSimilarity < 0 {
		minSimilarity = 0
	}
	if minSimilarity > 1 {
		minSimilarity = 1
	}

	coll, err := e.store.Get(figureID)
	if err != nil {
		return nil, err
	}
	if coll.Count() == 0 {
		return []Result{}, nil
	}

	// Widen both retrieval lists so fusion has something to reorder.
	fetchN := nResults * e.cfg.SearchMultiplier
	if fetchN > e.cfg.MaxSearchResults {
		fetchN = e.cfg.MaxSearchResults
	}
	if fetchN < nResults {
		fetchN = nResults
	}

	start := time.Now()

	queryVec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, ferrors.New(ferrors.ErrCodeSearchFailed, "embedding query", err)
	}
	queryTokens := e.proc.Process(query)

	idx, err := e.cache.Ensure(ctx, figureID, func() (map[string][]string, error) {
		all := coll.All()
		tokens := make(map[string][]string, len(all))
		for id, rec := range all {
			tokens[id] = rec.Tokens
		}
		return tokens, nil
	})
	if err != nil {
		return nil, ferrors.Index("ensuring sparse index", err)
	}

	var (
		denseHits []vector.QueryResult
		bm25Hits  []Hit
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := coll.Query(gctx, queryVec, fetchN)
		if err != nil {
			return err
		}
		denseHits = hits
		return nil
	})
	g.Go(func() error {
		if idx.Len() == 0 {
			return nil
		}
		bm25Hits = idx.Search(queryTokens, fetchN)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, ferrors.New(ferrors.ErrCodeSearchFailed, "hybrid retrieval", err)
	}

	// Drop dense hits below the similarity floor before fusion. When
	// nothing passes, the query has no semantic footprint in this corpus
	// and the whole search returns empty.
	filtered := denseHits[:0]
	for _, h := range denseHits {
		if float64(h.Similarity) >= minSimilarity {
			filtered = append(filtered, h)
		}
	}
	denseHits = filtered
	if len(denseHits) == 0 {
		slog.Debug("no dense hits above similarity floor",
			slog.String("figure_id", figureID))
		return []Result{}, nil
	}

	denseRanks := make([]rankedID, len(denseHits))
	denseByID := make(map[string]vector.QueryResult, len(denseHits))
	for i, h := range denseHits {
		denseRanks[i] = rankedID{id: h.ID, rank: i + 1}
		denseByID[h.ID] = h
	}

	sparseRanks := make([]rankedID, len(bm25Hits))
	bm25ByID := make(map[string]Hit, len(bm25Hits))
	for i, h := range bm25Hits {
		sparseRanks[i] = rankedID{id: h.DocID, rank: i + 1}
		bm25ByID[h.DocID] = h
	}

	fusedList := fuse(denseRanks, sparseRanks, e.cfg.RRFConstant)

	results := make([]Result, 0, nResults)
	for _, f := range fusedList {
		if len(results) == nResults {
			break
		}

		var (
			rec vector.Record
			sim float64
		)
		if dh, ok := denseByID[f.id]; ok {
			rec = dh.Record
			sim = float64(dh.Similarity)
		} else {
			r, ok := coll.Get(f.id)
			if !ok {
				continue
			}
			rec = r
			s, ok := coll.Similarity(f.id, queryVec)
			if !ok {
				continue
			}
			sim = float64(s)
		}

		// Every surfaced result must clear the similarity floor, even
		// ones promoted purely by BM25.
		if sim < minSimilarity {
			continue
		}

		res := Result{
			DocumentID:       f.id,
			Text:             rec.Text,
			Metadata:         rec.Metadata,
			CosineSimilarity: sim,
			RRFScore:         f.rrf,
			VectorRank:       f.denseRank,
			BM25Rank:         f.bm25Rank,
		}
		if bh, ok := bm25ByID[f.id]; ok {
			res.BM25Score = bh.Score
			res.TopMatchingWords = TopMatchingWords(bh.Contributions, e.proc.IsStopword)
		}
		results = append(results, res)
	}

	slog.Debug("search complete",
		slog.String("figure_id", figureID),
		slog.Int("dense_hits", len(denseHits)),
		slog.Int("bm25_hits", len(bm25Hits)),
		slog.Int("results", len(results)),
		slog.Duration("took", time.Since(start)))

	return results, nil
}
