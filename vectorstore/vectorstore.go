// Package vectorstore holds chunk embeddings behind a small interface with
// two backends: a Qdrant collection over its REST API, or a pgvector table
// in the same Postgres that holds the relational corpus.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/V4siliy/llm-manpage-rag/config"
)

// Point is one embedded chunk. The payload duplicates enough document
// metadata to make the collection inspectable on its own.
type Point struct {
	ChunkID         uuid.UUID
	Vector          []float32
	DocumentName    string
	DocumentSection string
	SectionName     string
	Anchor          string
	Text            string
}

// Hit is a similarity match. Callers hydrate full chunk rows from Postgres
// by ChunkID; Score is backend-native (cosine similarity for both backends).
type Hit struct {
	ChunkID uuid.UUID
	Score   float64
}

type Store interface {
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []Point) error
	Query(ctx context.Context, vector []float32, limit int) ([]Hit, error)
	Drop(ctx context.Context) error
}

// New selects the backend from configuration. The pgvector backend reuses
// the relational pool.
func New(cfg config.Config, pool *pgxpool.Pool) (Store, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendQdrant:
		return NewQdrantStore(QdrantOptions{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    cfg.Qdrant.Timeout,
		}), nil
	case config.VectorBackendPgvector:
		if pool == nil {
			return nil, fmt.Errorf("pgvector backend selected but postgres pool is nil")
		}
		return NewPgvectorStore(pool), nil
	default:
		return nil, fmt.Errorf("unknown vector backend: %s", cfg.VectorBackend)
	}
}
