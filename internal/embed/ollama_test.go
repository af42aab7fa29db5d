package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ollamaTestServer(t *testing.T, capture *[]ollamaEmbedRequest) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if capture != nil {
				*capture = append(*capture, req)
			}

			resp := ollamaEmbedResponse{}
			for range req.Input {
				resp.Embeddings = append(resp.Embeddings, []float32{3, 4})
			}
			_ = json.NewEncoder(w).Encode(resp)
		case "/api/version":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestOllamaEmbedDocuments(t *testing.T) {
	var requests []ollamaEmbedRequest
	srv := ollamaTestServer(t, &requests)
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 0, 5*time.Second)
	defer e.Close()

	vecs, err := e.EmbedDocuments(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	// Vectors come back normalized.
	assert.InDelta(t, 0.6, float64(vecs[0][0]), 1e-6)
	assert.InDelta(t, 0.8, float64(vecs[0][1]), 1e-6)

	// Dimensions detected from the first response.
	assert.Equal(t, 2, e.Dimensions())

	require.Len(t, requests, 1)
	assert.Equal(t, []string{"one", "two"}, requests[0].Input)
}

func TestOllamaQueryPrefixForQwen(t *testing.T) {
	var requests []ollamaEmbedRequest
	srv := ollamaTestServer(t, &requests)
	defer srv.Close()

	qwen := NewOllamaEmbedder(srv.URL, "qwen3-embedding:0.6b", 0, 5*time.Second)
	defer qwen.Close()

	_, err := qwen.EmbedQuery(context.Background(), "who won waterloo")
	require.NoError(t, err)
	require.Len(t, requests, 1)
	assert.Equal(t, "query: who won waterloo", requests[0].Input[0])

	// Documents are never prefixed.
	_, err = qwen.EmbedDocuments(context.Background(), []string{"doc text"})
	require.NoError(t, err)
	assert.Equal(t, "doc text", requests[1].Input[0])

	// Non-Qwen models get no prefix on queries either.
	requests = requests[:0]
	plain := NewOllamaEmbedder(srv.URL, "nomic-embed-text", 0, 5*time.Second)
	defer plain.Close()
	_, err = plain.EmbedQuery(context.Background(), "who won waterloo")
	require.NoError(t, err)
	assert.Equal(t, "who won waterloo", requests[0].Input[0])
}

func TestOllamaAvailable(t *testing.T) {
	srv := ollamaTestServer(t, nil)
	e := NewOllamaEmbedder(srv.URL, "m", 0, time.Second)
	assert.True(t, e.Available(context.Background()))

	srv.Close()
	assert.False(t, e.Available(context.Background()))
}

func TestOllamaErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "missing", 0, time.Second)
	_, err := e.EmbedDocuments(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOpenAIEmbedSortsByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		// Out of order on purpose.
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[0,1]},
			{"index":0,"embedding":[1,0]}
		]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL+"/v1", "text-embedding-3-small", "sk-test", 0, time.Second)
	defer e.Close()

	vecs, err := e.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(1), vecs[1][1])
}
