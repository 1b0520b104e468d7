package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// pgvectorStore keeps embeddings in a side table next to the relational
// corpus, one row per chunk. Cosine distance via the <=> operator.
type pgvectorStore struct {
	pool *pgxpool.Pool
}

func NewPgvectorStore(pool *pgxpool.Pool) Store {
	return &pgvectorStore{pool: pool}
}

var _ Store = (*pgvectorStore)(nil)

func (s *pgvectorStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_embeddings (
			chunk_id UUID PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			embedding VECTOR(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_chunk_embeddings_vec ON chunk_embeddings USING ivfflat (embedding vector_cosine_ops)",
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute embedding schema statement: %w", err)
		}
	}
	return nil
}

func (s *pgvectorStore) Upsert(ctx context.Context, points []Point) error {
	for _, p := range points {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO chunk_embeddings (chunk_id, embedding, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (chunk_id) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = NOW()
		`, p.ChunkID, pgvector.NewVector(p.Vector)); err != nil {
			return fmt.Errorf("upsert embedding for chunk %s: %w", p.ChunkID, err)
		}
	}
	return nil
}

func (s *pgvectorStore) Query(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx, `
		SELECT chunk_id, 1 - (embedding <=> $1::vector) AS score
		FROM chunk_embeddings
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ChunkID, &h.Score); err != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *pgvectorStore) Drop(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DROP TABLE IF EXISTS chunk_embeddings"); err != nil {
		return fmt.Errorf("drop chunk_embeddings: %w", err)
	}
	return nil
}
