// Package search ranks corpus chunks for a query across four modes:
// lexical full-text, trigram fuzzy, vector similarity, and a weighted
// combination of lexical and vector scores.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/V4siliy/llm-manpage-rag/embeddings"
	"github.com/V4siliy/llm-manpage-rag/store"
	"github.com/V4siliy/llm-manpage-rag/vectorstore"
)

type Mode string

const (
	ModeLexical  Mode = "lexical"
	ModeFuzzy    Mode = "fuzzy"
	ModeVector   Mode = "vector"
	ModeCombined Mode = "combined"
)

var ErrEmptyQuery = errors.New("query is empty")

// ParseMode validates a user-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLexical, ModeFuzzy, ModeVector, ModeCombined:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown search mode %q", s)
	}
}

// Searcher is the relational side of retrieval. *store.Store implements it;
// tests substitute fixed rankings.
type Searcher interface {
	SearchLexical(ctx context.Context, query string, limit int) ([]store.SearchResult, error)
	SearchFuzzy(ctx context.Context, query string, threshold float64, limit int) ([]store.SearchResult, error)
	SearchCombinedLexicalFuzzy(ctx context.Context, query string, threshold float64, limit int) ([]store.SearchResult, error)
	GetChunksByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]store.SearchResult, error)
}

var _ Searcher = (*store.Store)(nil)

type Engine struct {
	store          Searcher
	vectors        vectorstore.Store
	embedder       embeddings.Embedder
	lexicalWeight  float64
	vectorWeight   float64
	fuzzyThreshold float64
	logger         *zap.SugaredLogger
}

type Options struct {
	LexicalWeight  float64
	VectorWeight   float64
	FuzzyThreshold float64
}

// NewEngine wires the three retrieval paths. The vector store and embedder
// may be nil, in which case vector mode errors and combined mode degrades
// to the relational lexical+fuzzy merge.
func NewEngine(st Searcher, vectors vectorstore.Store, embedder embeddings.Embedder, opts Options, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		store:          st,
		vectors:        vectors,
		embedder:       embedder,
		lexicalWeight:  opts.LexicalWeight,
		vectorWeight:   opts.VectorWeight,
		fuzzyThreshold: opts.FuzzyThreshold,
		logger:         logger,
	}
}

// Search returns up to limit chunks ranked by the chosen mode. Scores are
// normalized to [0, 1]; ties break by document name, then anchor, so equal
// inputs always rank identically.
func (e *Engine) Search(ctx context.Context, query string, mode Mode, limit int) ([]store.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 10
	}

	switch mode {
	case ModeLexical:
		results, err := e.store.SearchLexical(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		return normalize(results), nil
	case ModeFuzzy:
		// Trigram similarity is already in [0, 1].
		return e.store.SearchFuzzy(ctx, query, e.fuzzyThreshold, limit)
	case ModeVector:
		return e.vectorSearch(ctx, query, limit)
	case ModeCombined:
		return e.combinedSearch(ctx, query, limit)
	default:
		return nil, fmt.Errorf("unknown search mode %q", mode)
	}
}

func (e *Engine) vectorSearch(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	if e.vectors == nil || e.embedder == nil {
		return nil, fmt.Errorf("vector search unavailable: no vector store configured")
	}

	vecs, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.vectors.Query(ctx, vecs[0], limit)
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}
	return e.hydrate(ctx, hits)
}

// combinedSearch merges normalized lexical and vector rankings with the
// configured weights. When the vector path is missing or failing, the query
// degrades to the relational lexical+fuzzy merge instead of failing.
func (e *Engine) combinedSearch(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	if e.vectors == nil || e.embedder == nil {
		return e.lexicalFuzzyFallback(ctx, query, limit)
	}

	vector, err := e.vectorSearch(ctx, query, limit)
	if err != nil {
		e.logger.Warnw("vector search failed, falling back to lexical and fuzzy", "error", err)
		return e.lexicalFuzzyFallback(ctx, query, limit)
	}

	lexical, err := e.store.SearchLexical(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	lexical = normalize(lexical)

	type scored struct {
		result store.SearchResult
		score  float64
	}
	merged := map[string]scored{}
	for _, r := range lexical {
		key := r.ChunkID.String()
		s := merged[key]
		s.result = r
		s.score += e.lexicalWeight * r.Score
		merged[key] = s
	}
	for _, r := range vector {
		key := r.ChunkID.String()
		s, ok := merged[key]
		if !ok {
			s.result = r
		}
		s.score += e.vectorWeight * r.Score
		merged[key] = s
	}

	out := make([]store.SearchResult, 0, len(merged))
	for _, s := range merged {
		r := s.result
		r.Score = clamp01(s.score)
		out = append(out, r)
	}
	sortResults(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// lexicalFuzzyFallback serves combined mode without a vector path: lexical
// and trigram hits merged on the relational side, rescaled to [0, 1].
func (e *Engine) lexicalFuzzyFallback(ctx context.Context, query string, limit int) ([]store.SearchResult, error) {
	results, err := e.store.SearchCombinedLexicalFuzzy(ctx, query, e.fuzzyThreshold, limit)
	if err != nil {
		return nil, err
	}
	results = normalize(results)
	sortResults(results)
	return results, nil
}

// hydrate turns vector hits into self-contained results using the
// relational rows, preserving the similarity ranking.
func (e *Engine) hydrate(ctx context.Context, hits []vectorstore.Hit) ([]store.SearchResult, error) {
	ids := make([]uuid.UUID, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	byID, err := e.store.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]store.SearchResult, 0, len(hits))
	for _, h := range hits {
		r, ok := byID[h.ChunkID]
		if !ok {
			// The vector store can briefly hold points for chunks deleted
			// from Postgres; skip them.
			e.logger.Debugw("vector hit without relational row", "chunk_id", h.ChunkID)
			continue
		}
		r.Score = clamp01(h.Score)
		out = append(out, r)
	}
	return out, nil
}

// normalize rescales scores so the best hit is 1. Lexical ts_rank values
// are unbounded, which would otherwise drown the vector side of a merge.
func normalize(results []store.SearchResult) []store.SearchResult {
	var max float64
	for _, r := range results {
		if r.Score > max {
			max = r.Score
		}
	}
	if max <= 0 {
		return results
	}
	for i := range results {
		results[i].Score /= max
	}
	return results
}

func sortResults(results []store.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentName != results[j].DocumentName {
			return results[i].DocumentName < results[j].DocumentName
		}
		return results[i].Anchor < results[j].Anchor
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
