package store

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const searchColumns = `
	c.id, c.document_id, d.name, d.section, d.title,
	c.section_name, c.anchor, c.text, c.token_count, d.created_at`

// SearchLexical ranks chunks by full-text relevance. The "simple" search
// configuration skips stemming so technical identifiers match verbatim.
// Ties break by earliest document creation, then anchor order.
func (s *Store) SearchLexical(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+searchColumns+`,
			ts_rank(c.search_vector, plainto_tsquery('simple', $1)) AS score
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.search_vector @@ plainto_tsquery('simple', $1)
		ORDER BY score DESC, d.created_at ASC, c.anchor ASC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "lexical search query")
	}
	return scanResults(rows)
}

// SearchFuzzy ranks chunks by trigram similarity above the threshold,
// tolerating typos and close variants. The threshold is applied through
// set_limit and the % operator so the trigram index serves the predicate;
// set_limit is per-connection, hence the pinned connection.
func (s *Store) SearchFuzzy(ctx context.Context, query string, threshold float64, limit int) ([]SearchResult, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquire connection")
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT set_limit($1::float4)", threshold); err != nil {
		return nil, errors.Wrap(err, "set trigram threshold")
	}
	rows, err := conn.Query(ctx, `
		SELECT`+searchColumns+`,
			similarity(c.text, $1) AS score
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.text % $1
		ORDER BY score DESC, d.created_at ASC, c.anchor ASC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "fuzzy search query")
	}
	return scanResults(rows)
}

// SearchCombinedLexicalFuzzy merges lexical and fuzzy hits, keeping each
// chunk's higher score. Higher relevance wins; equal relevance breaks by
// earliest document creation, then anchor lexical order.
func (s *Store) SearchCombinedLexicalFuzzy(ctx context.Context, query string, threshold float64, limit int) ([]SearchResult, error) {
	lexical, err := s.SearchLexical(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	fuzzy, err := s.SearchFuzzy(ctx, query, threshold, limit)
	if err != nil {
		return nil, err
	}

	merged := map[uuid.UUID]SearchResult{}
	for _, r := range append(lexical, fuzzy...) {
		if prev, ok := merged[r.ChunkID]; !ok || r.Score > prev.Score {
			merged[r.ChunkID] = r
		}
	}

	out := make([]SearchResult, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].docCreatedAt.Equal(out[j].docCreatedAt) {
			return out[i].docCreatedAt.Before(out[j].docCreatedAt)
		}
		return out[i].Anchor < out[j].Anchor
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetChunksByIDs fetches chunks in no particular order; callers re-sort by
// their own ranking. Missing IDs are simply absent from the result.
func (s *Store) GetChunksByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]SearchResult, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]SearchResult{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT`+searchColumns+`, 0::float8 AS score
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.id = ANY($1)
	`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "fetch chunks by id")
	}
	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]SearchResult, len(results))
	for _, r := range results {
		byID[r.ChunkID] = r
	}
	return byID, nil
}

func scanResults(rows pgx.Rows) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.ChunkID, &r.DocumentID, &r.DocumentName, &r.DocumentSection, &r.DocumentTitle,
			&r.SectionName, &r.Anchor, &r.Text, &r.TokenCount, &r.docCreatedAt, &r.Score,
		); err != nil {
			return nil, errors.Wrap(err, "scan search result")
		}
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate search results")
}
