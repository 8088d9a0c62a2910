package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"docqa/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	v[len(text)%dim] = 1
	return v
}

func TestHuggingFaceEmbedder_TEI(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)
		var req teiEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Truncate)

		mu.Lock()
		seen = append(seen, req.Inputs...)
		mu.Unlock()

		out := make([][]float32, len(req.Inputs))
		for i, in := range req.Inputs {
			out[i] = fakeVector(in, 4)
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	e := NewHuggingFaceEmbedder(Options{
		Model:     "BAAI/bge-small-en",
		BaseURL:   srv.URL,
		TEI:       true,
		BatchSize: 2,
	})

	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, 4, e.Dimension())

	_, err = e.EmbedQuery(context.Background(), "what is bip39")
	require.NoError(t, err)

	require.Len(t, seen, 4)
	assert.Equal(t, "a", seen[0], "documents carry no prefix for BGE")
	assert.Equal(t, BGEQueryInstruction+"what is bip39", seen[3])
}

func TestHuggingFaceEmbedder_InferenceAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pipeline/feature-extraction/sentence-transformers/all-mpnet-base-v2", r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))

		var req hfInferenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Options.WaitForModel)

		// token level output: two tokens per input
		out := make([][][]float32, len(req.Inputs))
		for i := range req.Inputs {
			out[i] = [][]float32{{1, 0}, {0, 1}}
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	e := NewHuggingFaceEmbedder(Options{
		Model:   "sentence-transformers/all-mpnet-base-v2",
		BaseURL: srv.URL,
		APIKey:  "hf_test",
	})

	vec, err := e.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
}

func TestHuggingFaceEmbedder_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewHuggingFaceEmbedder(Options{Model: "m", BaseURL: srv.URL, TEI: true})
	_, err := e.EmbedDocuments(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHuggingFaceEmbedder_DimensionMismatch(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		dim := 3
		if calls > 1 {
			dim = 5
		}
		_ = json.NewEncoder(w).Encode([][]float32{make([]float32, dim)})
	}))
	defer srv.Close()

	e := NewHuggingFaceEmbedder(Options{Model: "m", BaseURL: srv.URL, TEI: true, Dimension: 384})
	_, err := e.EmbedQuery(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 3, e.Dimension(), "learned width replaces the configured hint")

	_, err = e.EmbedQuery(context.Background(), "b")
	require.Error(t, err)
}

func TestDefaultPrefixes(t *testing.T) {
	q, d := defaultPrefixes("intfloat/e5-base-v2")
	assert.Equal(t, "query: ", q)
	assert.Equal(t, "passage: ", d)

	q, d = defaultPrefixes("BAAI/bge-small-en")
	assert.Equal(t, BGEQueryInstruction, q)
	assert.Empty(t, d)

	q, d = defaultPrefixes("sentence-transformers/all-mpnet-base-v2")
	assert.Empty(t, q)
	assert.Empty(t, d)
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge-small", req.Model)

		data := make([]string, len(req.Input))
		// answer in reverse order to exercise index handling
		for i := range req.Input {
			idx := len(req.Input) - 1 - i
			data[i] = fmt.Sprintf(`{"object":"embedding","index":%d,"embedding":[%d,0,0]}`, idx, len(req.Input[idx]))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"object":"list","model":"bge-small","data":[%s]}`, strings.Join(data, ","))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(Options{Model: "bge-small", BaseURL: srv.URL + "/v1", BatchSize: 2})
	require.NoError(t, err)

	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, float32(3), vecs[2][0])
	assert.Equal(t, 3, e.Dimension())
}

func TestOpenAIEmbedder_RequiresKeyForOpenAI(t *testing.T) {
	_, err := NewOpenAIEmbedder(Options{Model: "text-embedding-3-small"})
	assert.Error(t, err)
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embed", r.URL.Path)
		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		fmt.Fprintf(w, `{"embeddings":[[%d,1]]}`, len(req.Input))
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder(Options{Model: "nomic-embed-text", BaseURL: srv.URL})
	require.NoError(t, err)

	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "bb"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{2, 1}, vecs[1])

	vec, err := e.EmbedQuery(context.Background(), "ccc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 1}, vec)
	assert.Equal(t, 2, e.Dimension())
}

func TestMockEmbedder(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()

	a, _ := e.EmbedQuery(ctx, "bitcoin mnemonic words")
	b, _ := e.EmbedQuery(ctx, "Bitcoin mnemonic words!")
	c, _ := e.EmbedQuery(ctx, "essays about painting")

	assert.Equal(t, a, b, "mock vectors ignore case and punctuation")
	assert.Greater(t, dot(a, b), dot(a, c))
	assert.InDelta(t, 1.0, dot(a, a), 1e-5)

	empty, _ := e.EmbedQuery(ctx, "")
	assert.Len(t, empty, 64)
}

func TestNew(t *testing.T) {
	for _, provider := range []string{"huggingface", "mock"} {
		cfg := config.DefaultConfig().Embedding
		cfg.Provider = provider
		e, err := New(cfg, nil)
		require.NoError(t, err, provider)
		assert.NotNil(t, e)
	}

	cfg := config.DefaultConfig().Embedding
	cfg.Provider = "voyage"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
