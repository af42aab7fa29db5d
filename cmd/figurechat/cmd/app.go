package cmd

import (
	"fmt"

	"github.com/figurechat/figurechat/internal/config"
	"github.com/figurechat/figurechat/internal/document"
	"github.com/figurechat/figurechat/internal/embed"
	"github.com/figurechat/figurechat/internal/figure"
	"github.com/figurechat/figurechat/internal/ingest"
	"github.com/figurechat/figurechat/internal/search"
	"github.com/figurechat/figurechat/internal/textproc"
	"github.com/figurechat/figurechat/internal/vector"
)

// app is the wired component graph shared by the commands.
type app struct {
	store    *vector.Store
	cache    *search.Cache
	embedder embed.Embedder
	proc     *textproc.Processor
	figures  *figure.Manager
	engine   *search.Engine
	ingestor *ingest.Service
}

func buildApp(cfg *config.Config) (*app, error) {
	store, err := vector.NewStore(cfg.Paths.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	cache := search.NewCache(cfg.Paths.BM25Indexes)

	embedder, err := embed.NewFromConfig(&cfg.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("configure embedder: %w", err)
	}

	proc, err := textproc.New(cfg.Paths.Stopwords)
	if err != nil {
		return nil, fmt.Errorf("build text processor: %w", err)
	}

	figures, err := figure.NewManager(cfg.Paths.Figures, cfg.Paths.FigureImages, store, embedder, proc, cache)
	if err != nil {
		return nil, fmt.Errorf("build figure manager: %w", err)
	}

	engine := search.NewEngine(store, cache, embedder, proc, cfg.Search)

	chunker := document.NewChunker(cfg.Chunking.MaxChunkChars, cfg.Chunking.OverlapPercent)
	ingestor := ingest.NewService(figures, chunker, cfg.Ingest.MaxFileBytes)

	return &app{
		store:    store,
		cache:    cache,
		embedder: embedder,
		proc:     proc,
		figures:  figures,
		engine:   engine,
		ingestor: ingestor,
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	_ = a.embedder.Close()
	_ = a.proc.Close()
}
