package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOpenAI(t *testing.T, dimension int, handler http.HandlerFunc) Embedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIEmbedder(Options{
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: srv.URL,
		Model:         "text-embedding-3-small",
		Dimension:     dimension,
	})
}

func TestOpenAIEmbedRequestsConfiguredDimension(t *testing.T) {
	var gotReq map[string]any

	embedder := newTestOpenAI(t, 2, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1, 0.2}, "index": 0},
			},
		})
	})

	vecs, err := embedder.Embed(context.Background(), []string{"ls lists files"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, float64(2), gotReq["dimensions"])
}

func TestOpenAIEmbedOrdersByResponseIndex(t *testing.T) {
	embedder := newTestOpenAI(t, 0, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.9}, "index": 1},
				{"embedding": []float32{0.1}, "index": 0},
			},
		})
	})

	vecs, err := embedder.Embed(context.Background(), []string{"ls", "cat"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1}, vecs[0])
	assert.Equal(t, []float32{0.9}, vecs[1])
}

func TestOpenAIEmbedRejectsCountMismatch(t *testing.T) {
	embedder := newTestOpenAI(t, 0, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": []float32{0.1}, "index": 0},
			},
		})
	})

	_, err := embedder.Embed(context.Background(), []string{"ls", "cat"})
	require.Error(t, err)
}
