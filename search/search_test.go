package search

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4siliy/llm-manpage-rag/store"
	"github.com/V4siliy/llm-manpage-rag/vectorstore"
)

type stubSearcher struct {
	lexical       []store.SearchResult
	combined      []store.SearchResult
	combinedCalls int
	byID          map[uuid.UUID]store.SearchResult
}

func (s *stubSearcher) SearchLexical(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	return s.lexical, nil
}

func (s *stubSearcher) SearchFuzzy(ctx context.Context, query string, threshold float64, limit int) ([]store.SearchResult, error) {
	return nil, nil
}

func (s *stubSearcher) SearchCombinedLexicalFuzzy(ctx context.Context, query string, threshold float64, limit int) ([]store.SearchResult, error) {
	s.combinedCalls++
	return s.combined, nil
}

func (s *stubSearcher) GetChunksByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]store.SearchResult, error) {
	out := map[uuid.UUID]store.SearchResult{}
	for _, id := range ids {
		if r, ok := s.byID[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

type stubVectors struct {
	hits []vectorstore.Hit
	err  error
}

func (s *stubVectors) EnsureCollection(ctx context.Context, dimension int) error { return nil }
func (s *stubVectors) Upsert(ctx context.Context, points []vectorstore.Point) error {
	return nil
}
func (s *stubVectors) Query(ctx context.Context, vector []float32, limit int) ([]vectorstore.Hit, error) {
	return s.hits, s.err
}
func (s *stubVectors) Drop(ctx context.Context) error { return nil }

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{0.1}
	}
	return vecs, nil
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"lexical", "fuzzy", "vector", "combined"} {
		mode, err := ParseMode(valid)
		require.NoError(t, err)
		assert.Equal(t, Mode(valid), mode)
	}
	_, err := ParseMode("semantic")
	require.Error(t, err)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	engine := NewEngine(nil, nil, nil, Options{}, nil)
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := engine.Search(context.Background(), q, ModeLexical, 10)
		assert.ErrorIs(t, err, ErrEmptyQuery)
	}
}

func TestNormalizeRescalesToUnit(t *testing.T) {
	results := []store.SearchResult{
		{Anchor: "a", Score: 0.2},
		{Anchor: "b", Score: 0.8},
		{Anchor: "c", Score: 0.4},
	}
	normalized := normalize(results)
	assert.Equal(t, 1.0, normalized[1].Score)
	assert.InDelta(t, 0.25, normalized[0].Score, 1e-9)
	assert.InDelta(t, 0.5, normalized[2].Score, 1e-9)
}

func TestNormalizeAllZeroUnchanged(t *testing.T) {
	results := normalize([]store.SearchResult{{Anchor: "a"}, {Anchor: "b"}})
	for _, r := range results {
		assert.Equal(t, 0.0, r.Score)
	}
}

func TestSortResultsDeterministicTieBreak(t *testing.T) {
	results := []store.SearchResult{
		{DocumentName: "ls", Anchor: "ls-1-options-02", Score: 0.5},
		{DocumentName: "dir", Anchor: "dir-1-name-01", Score: 0.5},
		{DocumentName: "ls", Anchor: "ls-1-name-01", Score: 0.5},
		{DocumentName: "cat", Anchor: "cat-1-name-01", Score: 0.9},
	}
	sortResults(results)

	assert.Equal(t, "cat", results[0].DocumentName)
	assert.Equal(t, "dir", results[1].DocumentName)
	assert.Equal(t, "ls-1-name-01", results[2].Anchor)
	assert.Equal(t, "ls-1-options-02", results[3].Anchor)
}

func TestCombinedSearchWeightedMerge(t *testing.T) {
	lexTop := store.SearchResult{ChunkID: uuid.New(), DocumentName: "ls", Anchor: "ls-1-name-01", Score: 2.0}
	both := store.SearchResult{ChunkID: uuid.New(), DocumentName: "cat", Anchor: "cat-1-name-01", Score: 1.0}
	irrelevant := store.SearchResult{ChunkID: uuid.New(), DocumentName: "true", Anchor: "true-1-name-01"}

	searcher := &stubSearcher{
		lexical: []store.SearchResult{lexTop, both},
		byID: map[uuid.UUID]store.SearchResult{
			both.ChunkID:       both,
			irrelevant.ChunkID: irrelevant,
		},
	}
	vectors := &stubVectors{hits: []vectorstore.Hit{
		{ChunkID: both.ChunkID, Score: 0.8},
		{ChunkID: irrelevant.ChunkID, Score: 0.0},
	}}
	engine := NewEngine(searcher, vectors, stubEmbedder{}, Options{LexicalWeight: 0.6, VectorWeight: 0.4}, nil)

	results, err := engine.Search(context.Background(), "list files", ModeCombined, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// cat: 0.6*0.5 lexical + 0.4*0.8 vector; ls: lexical top only.
	assert.Equal(t, "cat", results[0].DocumentName)
	assert.InDelta(t, 0.62, results[0].Score, 1e-9)
	assert.Equal(t, "ls", results[1].DocumentName)
	assert.InDelta(t, 0.6, results[1].Score, 1e-9)

	// Zero relevance plus zero similarity must rank last at zero.
	assert.Equal(t, "true", results[2].DocumentName)
	assert.Equal(t, 0.0, results[2].Score)
}

func TestCombinedSearchFallsBackWhenVectorPathFails(t *testing.T) {
	searcher := &stubSearcher{
		combined: []store.SearchResult{
			{ChunkID: uuid.New(), DocumentName: "ls", Anchor: "ls-1-name-01", Score: 0.4},
			{ChunkID: uuid.New(), DocumentName: "cat", Anchor: "cat-1-name-01", Score: 0.2},
		},
	}
	vectors := &stubVectors{err: errors.New("connection refused")}
	engine := NewEngine(searcher, vectors, stubEmbedder{}, Options{LexicalWeight: 0.6, VectorWeight: 0.4}, nil)

	results, err := engine.Search(context.Background(), "list files", ModeCombined, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, searcher.combinedCalls, "should merge lexical and fuzzy relationally")
	require.Len(t, results, 2)
	assert.Equal(t, "ls", results[0].DocumentName)
	assert.Equal(t, 1.0, results[0].Score, "fallback scores are rescaled to the unit interval")
	assert.InDelta(t, 0.5, results[1].Score, 1e-9)
}

func TestCombinedSearchFallsBackWithoutVectorStore(t *testing.T) {
	searcher := &stubSearcher{
		combined: []store.SearchResult{{ChunkID: uuid.New(), DocumentName: "ls", Score: 0.4}},
	}
	engine := NewEngine(searcher, nil, nil, Options{LexicalWeight: 0.6, VectorWeight: 0.4}, nil)

	results, err := engine.Search(context.Background(), "list files", ModeCombined, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, searcher.combinedCalls)
	require.Len(t, results, 1)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.3))
	assert.Equal(t, 1.0, clamp01(1.7))
	assert.Equal(t, 0.4, clamp01(0.4))
}
