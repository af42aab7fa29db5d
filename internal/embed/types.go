// Package embed produces dense vectors for documents and queries.
//
// Two providers are supported: a local Ollama instance and an external
// OpenAI-shape /embeddings endpoint. The interface exposes separate
// document and query methods because some models (Qwen-style) want queries
// prefixed with an instruction while documents are encoded unmodified.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// DefaultTimeout bounds a single embedding HTTP call.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is the number of texts sent per request.
	DefaultBatchSize = 32

	// qwenQueryPrefix is prepended to query text for Qwen-style embedding
	// models. Documents are encoded unmodified.
	qwenQueryPrefix = "query: "
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// EmbedDocuments generates one embedding per input text.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a search query, applying the
	// model's query-side formatting when it has one.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
