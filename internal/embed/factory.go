package embed

import (
	"log/slog"

	"github.com/figurechat/figurechat/internal/config"
)

// NewFromConfig constructs the configured provider wrapped in the LRU cache.
func NewFromConfig(cfg *config.EmbeddingsConfig) (Embedder, error) {
	var inner Embedder
	switch cfg.Source {
	case config.EmbeddingSourceExternal:
		inner = NewOpenAIEmbedder(cfg.Endpoint, cfg.Model, cfg.APIKey, cfg.Dimensions, cfg.Timeout.Std())
	default:
		inner = NewOllamaEmbedder(cfg.Endpoint, cfg.Model, cfg.Dimensions, cfg.Timeout.Std())
	}

	slog.Info("embedding provider configured",
		slog.String("source", cfg.Source),
		slog.String("model", cfg.Model),
		slog.String("endpoint", cfg.Endpoint))

	return NewCachedEmbedder(inner, cfg.CacheSize)
}
