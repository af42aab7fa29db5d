package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	ferrors "github.com/figurechat/figurechat/internal/errors"
)

// OllamaEmbedder generates embeddings via a local Ollama instance.
type OllamaEmbedder struct {
	endpoint string
	model    string
	client   *http.Client

	mu   sync.RWMutex
	dims int

	// queryPrefix is prepended to queries only; empty for models that do
	// not distinguish the two sides.
	queryPrefix string
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an embedder backed by Ollama's /api/embed.
// Dimensions are detected on first use when dims is zero.
func NewOllamaEmbedder(endpoint, model string, dims int, timeout time.Duration) *OllamaEmbedder {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	prefix := ""
	if strings.Contains(strings.ToLower(model), "qwen") {
		prefix = qwenQueryPrefix
	}

	return &OllamaEmbedder{
		endpoint:    strings.TrimRight(endpoint, "/"),
		model:       model,
		dims:        dims,
		queryPrefix: prefix,
		client:      &http.Client{Timeout: timeout},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// EmbedDocuments embeds texts in batches, preserving input order.
func (e *OllamaEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += DefaultBatchSize {
		end := start + DefaultBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}

	return results, nil
}

// EmbedQuery embeds a single query, applying the model's query prefix.
func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{e.queryPrefix + text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, ferrors.Embedding(
			fmt.Sprintf("expected 1 embedding, got %d", len(vecs)), nil)
	}
	return vecs[0], nil
}

func (e *OllamaEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, ferrors.Embedding("encoding embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, ferrors.Embedding("building embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, ferrors.Transport("ollama embed request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, ferrors.Embedding(
			fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ferrors.Embedding("decoding embed response", err)
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, ferrors.Embedding(
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Embeddings)), nil)
	}

	out := make([][]float32, len(parsed.Embeddings))
	for i, v := range parsed.Embeddings {
		out[i] = normalizeVector(v)
	}

	e.recordDims(out)
	return out, nil
}

func (e *OllamaEmbedder) recordDims(vecs [][]float32) {
	if len(vecs) == 0 {
		return
	}
	e.mu.Lock()
	if e.dims == 0 {
		e.dims = len(vecs[0])
	}
	e.mu.Unlock()
}

// Dimensions returns the embedding dimension, 0 if not yet detected.
func (e *OllamaEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the Ollama model identifier.
func (e *OllamaEmbedder) ModelName() string { return e.model }

// Available probes the Ollama version endpoint.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		e.endpoint+"/api/version", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases the HTTP client's idle connections.
func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
