package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/figurechat/figurechat/internal/config"
	"github.com/figurechat/figurechat/internal/document"
	"github.com/figurechat/figurechat/internal/figure"
	"github.com/figurechat/figurechat/internal/ingest"
	"github.com/figurechat/figurechat/internal/llm"
	"github.com/figurechat/figurechat/internal/search"
	"github.com/figurechat/figurechat/internal/session"
	"github.com/figurechat/figurechat/internal/textproc"
	"github.com/figurechat/figurechat/internal/vector"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	index map[string]int
}

const fakeDims = 64

func (f *fakeEmbedder) vec(text string) []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index == nil {
		f.index = make(map[string]int)
	}
	v := make([]float32, fakeDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		dim, ok := f.index[word]
		if !ok {
			dim = len(f.index) % fakeDims
			f.index[word] = dim
		}
		v[dim]++
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum > 0 {
		mag := float32(math.Sqrt(sum))
		for i := range v {
			v[i] /= mag
		}
	}
	return v
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vec(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.vec(text), nil
}

func (f *fakeEmbedder) Dimensions() int                    { return fakeDims }
func (f *fakeEmbedder) ModelName() string                  { return "fake" }
func (f *fakeEmbedder) Available(ctx context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                       { return nil }

// fakeLLM streams a fixed reply in the chat completions wire shape.
func fakeLLM(t *testing.T, tokens ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, tok := range tokens {
			chunk := map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": tok}}},
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func newTestServer(t *testing.T, llmURL string) *httptest.Server {
	t.Helper()

	base := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = base
	cfg.Paths.Figures = filepath.Join(base, "figures")
	cfg.Paths.VectorStore = filepath.Join(base, "vectors")
	cfg.Paths.BM25Indexes = filepath.Join(base, "bm25")
	cfg.Paths.Stopwords = filepath.Join(base, "stopwords")
	cfg.Paths.Conversations = filepath.Join(base, "conversations")
	cfg.Paths.FigureImages = filepath.Join(base, "images")
	cfg.LLM.Endpoint = llmURL
	cfg.LLM.RewriteQueries = false

	store, err := vector.NewStore(cfg.Paths.VectorStore)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	proc, err := textproc.New(cfg.Paths.Stopwords)
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Close() })

	cache := search.NewCache(cfg.Paths.BM25Indexes)
	emb := &fakeEmbedder{}

	figures, err := figure.NewManager(cfg.Paths.Figures, cfg.Paths.FigureImages, store, emb, proc, cache)
	require.NoError(t, err)

	engine := search.NewEngine(store, cache, emb, proc, cfg.Search)
	chunker := document.NewChunker(500, 10)
	ingestor := ingest.NewService(figures, chunker, cfg.Ingest.MaxFileBytes)

	sessions, err := session.NewManager(cfg.Paths.Conversations,
		cfg.Sessions.InactivityTimeout.Std(), cfg.Sessions.SweepInterval.Std())
	require.NoError(t, err)
	t.Cleanup(sessions.Close)

	srv := New(cfg, figures, engine, ingestor, sessions, llm.NewClient(cfg.LLM))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createFigure(t *testing.T, ts *httptest.Server, id, name string) {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/figures", figureRequest{ID: id, Name: name})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestFigureCRUD(t *testing.T) {
	ts := newTestServer(t, "http://unused")

	// Create.
	resp := postJSON(t, ts.URL+"/api/figures", figureRequest{
		ID: "napoleon", Name: "Napoleon Bonaparte", Description: "emperor",
	})
	fig := decodeBody[figure.Figure](t, resp)
	assert.Equal(t, "napoleon", fig.ID)

	// Duplicate conflicts.
	resp = postJSON(t, ts.URL+"/api/figures", figureRequest{ID: "napoleon", Name: "Again"})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Validation failure carries the field map.
	resp = postJSON(t, ts.URL+"/api/figures", figureRequest{ID: "bad id", Name: ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errResp := decodeBody[errorBody](t, resp)
	assert.Contains(t, errResp.Details, "id")
	assert.Contains(t, errResp.Details, "name")

	// Get.
	getResp, err := http.Get(ts.URL + "/api/figures/napoleon")
	require.NoError(t, err)
	got := decodeBody[figure.Figure](t, getResp)
	assert.Equal(t, "Napoleon Bonaparte", got.Name)

	// Unknown figure is 404.
	missing, err := http.Get(ts.URL + "/api/figures/nobody")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	// List.
	listResp, err := http.Get(ts.URL + "/api/figures")
	require.NoError(t, err)
	list := decodeBody[struct {
		Figures []figure.Figure `json:"figures"`
	}](t, listResp)
	assert.Len(t, list.Figures, 1)

	// Update.
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/figures/napoleon",
		strings.NewReader(`{"name":"Napoleon I","description":"emperor","persona":""}`))
	require.NoError(t, err)
	putResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	updated := decodeBody[figure.Figure](t, putResp)
	assert.Equal(t, "Napoleon I", updated.Name)

	// Delete.
	del, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/figures/napoleon", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(del)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	gone, err := http.Get(ts.URL + "/api/figures/napoleon")
	require.NoError(t, err)
	gone.Body.Close()
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

// uploadDocument posts one file and returns the SSE event types seen.
func uploadDocument(t *testing.T, ts *httptest.Server, figureID, filename, content string) []string {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/figures/"+figureID+"/documents",
		mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var types []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			types = append(types, strings.TrimPrefix(line, "event: "))
		}
	}
	require.NoError(t, scanner.Err())
	return types
}

func TestUploadAndSearch(t *testing.T) {
	ts := newTestServer(t, "http://unused")
	createFigure(t, ts, "marx", "Karl Marx")

	text := strings.Repeat("The workers have nothing to lose but their chains. ", 30)
	types := uploadDocument(t, ts, "marx", "manifesto.txt", text)

	assert.Contains(t, types, ingest.EventFileStart)
	assert.Contains(t, types, ingest.EventChunkProgress)
	assert.Contains(t, types, ingest.EventFileComplete)
	assert.Equal(t, ingest.EventUploadComplete, types[len(types)-1])

	// The uploaded text is searchable.
	resp := postJSON(t, ts.URL+"/api/search", searchRequest{
		FigureID: "marx", Query: "workers chains", NResults: 3,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[struct {
		Results []search.Result `json:"results"`
		Count   int             `json:"count"`
	}](t, resp)

	require.NotEmpty(t, body.Results)
	assert.Equal(t, len(body.Results), body.Count)
	assert.Contains(t, body.Results[0].Text, "workers")
	assert.Greater(t, body.Results[0].CosineSimilarity, 0.05)
}

func TestUploadUnknownFigure(t *testing.T) {
	ts := newTestServer(t, "http://unused")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "x.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("text"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/figures/nobody/documents",
		mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The figure check happens before streaming starts.
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSearchValidation(t *testing.T) {
	ts := newTestServer(t, "http://unused")
	createFigure(t, ts, "ada", "Ada Lovelace")

	// An empty query is answered, not rejected.
	resp := postJSON(t, ts.URL+"/api/search", searchRequest{FigureID: "ada", Query: "  "})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	empty := decodeBody[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Equal(t, 0, empty.Count)

	resp = postJSON(t, ts.URL+"/api/search", searchRequest{FigureID: "nobody", Query: "x"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSearchPerRequestSimilarityFloor(t *testing.T) {
	ts := newTestServer(t, "http://unused")
	createFigure(t, ts, "marx", "Karl Marx")
	uploadDocument(t, ts, "marx", "manifesto.txt",
		strings.Repeat("The workers have nothing to lose but their chains. ", 30))

	// Configured floor: the partial match comes back.
	resp := postJSON(t, ts.URL+"/api/search", searchRequest{
		FigureID: "marx", Query: "workers chains",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	loose := decodeBody[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Greater(t, loose.Count, 0)

	// A strict per-request floor filters everything out.
	strict := 0.99
	resp = postJSON(t, ts.URL+"/api/search", searchRequest{
		FigureID: "marx", Query: "workers chains", MinCosineSimilarity: &strict,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	none := decodeBody[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Equal(t, 0, none.Count)
}

// uploadImage posts a portrait and returns the stored path.
func uploadImage(t *testing.T, ts *httptest.Server, figureID, filename string) string {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("not really pixels"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/figures/"+figureID+"/image",
		mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string]string](t, resp)
	return body["image_path"]
}

func TestFigureImageReplacedAcrossExtensions(t *testing.T) {
	ts := newTestServer(t, "http://unused")
	createFigure(t, ts, "ada", "Ada Lovelace")

	first := uploadImage(t, ts, "ada", "portrait.png")
	require.True(t, strings.HasSuffix(first, ".png"))

	second := uploadImage(t, ts, "ada", "portrait.jpg")
	require.True(t, strings.HasSuffix(second, ".jpg"))

	// The old portrait is gone, not orphaned beside the new one.
	_, err := os.Stat(first)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(second)
	assert.NoError(t, err)
}

func TestChatStreamsTokens(t *testing.T) {
	llmSrv := fakeLLM(t, "I am ", "Karl Marx.")
	defer llmSrv.Close()

	ts := newTestServer(t, llmSrv.URL)
	createFigure(t, ts, "marx", "Karl Marx")
	uploadDocument(t, ts, "marx", "manifesto.txt",
		strings.Repeat("The history of all society is the history of class struggles. ", 20))

	resp := postJSON(t, ts.URL+"/api/chat", chatRequest{
		FigureID: "marx", Message: "tell me about class struggles",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var (
		tokens    []string
		sessionID string
		sawDone   bool
		event     string
	)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			payload := strings.TrimPrefix(line, "data: ")
			switch event {
			case "token":
				var tok struct {
					Token string `json:"token"`
				}
				require.NoError(t, json.Unmarshal([]byte(payload), &tok))
				tokens = append(tokens, tok.Token)
			case "done":
				var done struct {
					SessionID string `json:"session_id"`
				}
				require.NoError(t, json.Unmarshal([]byte(payload), &done))
				sessionID = done.SessionID
				sawDone = true
			}
		}
	}
	require.NoError(t, scanner.Err())

	assert.Equal(t, "I am Karl Marx.", strings.Join(tokens, ""))
	assert.True(t, sawDone)
	assert.NotEmpty(t, sessionID)

	// A second turn on the same session succeeds.
	resp2 := postJSON(t, ts.URL+"/api/chat", chatRequest{
		FigureID: "marx", SessionID: sessionID, Message: "go on",
	})
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestChatValidation(t *testing.T) {
	ts := newTestServer(t, "http://unused")
	createFigure(t, ts, "ada", "Ada Lovelace")

	resp := postJSON(t, ts.URL+"/api/chat", chatRequest{FigureID: "ada", Message: " "})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/api/chat", chatRequest{FigureID: "nobody", Message: "hi"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "http://unused")

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestClearAndSync(t *testing.T) {
	ts := newTestServer(t, "http://unused")
	createFigure(t, ts, "ada", "Ada Lovelace")
	uploadDocument(t, ts, "ada", "notes.txt",
		strings.Repeat("The analytical engine weaves algebraic patterns. ", 20))

	resp := postJSON(t, ts.URL+"/api/figures/ada/sync", nil)
	fig := decodeBody[figure.Figure](t, resp)
	assert.Greater(t, fig.DocumentCount, 0)

	resp = postJSON(t, ts.URL+"/api/figures/ada/clear", nil)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(ts.URL + "/api/figures/ada")
	require.NoError(t, err)
	cleared := decodeBody[figure.Figure](t, getResp)
	assert.Equal(t, 0, cleared.DocumentCount)
}

func TestChatWithUnreachableLLM(t *testing.T) {
	ts := newTestServer(t, "http://127.0.0.1:1")
	createFigure(t, ts, "ada", "Ada Lovelace")

	resp := postJSON(t, ts.URL+"/api/chat", chatRequest{FigureID: "ada", Message: "hello"})
	defer resp.Body.Close()

	// Retrieval succeeds (empty corpus), streaming starts, then the LLM
	// failure arrives as an error event.
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sawError bool
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: error") {
			sawError = true
		}
	}
	assert.True(t, sawError)
}
