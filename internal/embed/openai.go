package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	ferrors "github.com/figurechat/figurechat/internal/errors"
)

// OpenAIEmbedder generates embeddings via an OpenAI-compatible /embeddings
// endpoint (OpenAI itself, or any API-compatible hosted service).
type OpenAIEmbedder struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client

	mu   sync.RWMutex
	dims int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder for an external embeddings API.
func NewOpenAIEmbedder(endpoint, model, apiKey string, dims int, timeout time.Duration) *OpenAIEmbedder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OpenAIEmbedder{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		apiKey:   apiKey,
		dims:     dims,
		client:   &http.Client{Timeout: timeout},
	}
}

type openaiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// EmbedDocuments embeds texts in batches, preserving input order.
func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
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

// EmbedQuery embeds a single query. External APIs handle query-side
// formatting server-side, so no prefix is applied.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, ferrors.Embedding(
			fmt.Sprintf("expected 1 embedding, got %d", len(vecs)), nil)
	}
	return vecs[0], nil
}

func (e *OpenAIEmbedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openaiEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, ferrors.Embedding("encoding embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, ferrors.Embedding("building embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, ferrors.Transport("embeddings request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, ferrors.New(ferrors.ErrCodeEmbeddingRemote,
			fmt.Sprintf("embeddings API returned %d: %s",
				resp.StatusCode, strings.TrimSpace(string(msg))), nil)
	}

	var parsed openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, ferrors.Embedding("decoding embed response", err)
	}
	if parsed.Error != nil {
		return nil, ferrors.New(ferrors.ErrCodeEmbeddingRemote, parsed.Error.Message, nil)
	}
	if len(parsed.Data) != len(texts) {
		return nil, ferrors.Embedding(
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(parsed.Data)), nil)
	}

	// The API may return items out of order; the index field is
	// authoritative.
	sort.Slice(parsed.Data, func(i, j int) bool {
		return parsed.Data[i].Index < parsed.Data[j].Index
	})

	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = normalizeVector(d.Embedding)
	}

	e.mu.Lock()
	if e.dims == 0 && len(out) > 0 {
		e.dims = len(out[0])
	}
	e.mu.Unlock()

	return out, nil
}

// Dimensions returns the embedding dimension, 0 if not yet detected.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the external model identifier.
func (e *OpenAIEmbedder) ModelName() string { return e.model }

// Available reports whether the embedder is configured. External APIs have
// no cheap health endpoint, so configuration presence stands in for a probe.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	return e.endpoint != "" && e.apiKey != ""
}

// Close releases the HTTP client's idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
