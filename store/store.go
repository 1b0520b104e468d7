// Package store is the Postgres adapter for documents, chunks, and the
// evaluation tables. Lexical search uses a token-normalized tsvector with
// the "simple" configuration (no stemming, so identifiers like "ls(1)"
// match verbatim) and fuzzy search uses pg_trgm trigram similarity.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Document struct {
	ID         uuid.UUID
	Name       string
	Section    string
	Title      string
	SourcePath string
	License    string
	Aliases    []string
	VersionTag string
	CreatedAt  time.Time
}

type Chunk struct {
	ID             uuid.UUID
	DocumentID     uuid.UUID
	SectionName    string
	Anchor         string
	Text           string
	TokenCount     int
	SeeAlsoRefs    []string
	Constants      []string
	EmbeddingModel string
	VectorKey      string
}

// SearchResult carries everything needed to render a hit without a second
// lookup.
type SearchResult struct {
	ChunkID         uuid.UUID
	DocumentID      uuid.UUID
	DocumentName    string
	DocumentSection string
	DocumentTitle   string
	SectionName     string
	Anchor          string
	Text            string
	TokenCount      int
	Score           float64

	docCreatedAt time.Time
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "create postgres pool")
	}
	return pool, nil
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// EnsureSchema creates the relational schema. Safe to run repeatedly.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS pg_trgm",
		`CREATE TABLE IF NOT EXISTS documents (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			section TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			source_path TEXT NOT NULL DEFAULT '',
			license TEXT NOT NULL DEFAULT '',
			aliases TEXT[] NOT NULL DEFAULT '{}',
			version_tag TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (name, section, version_tag)
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id UUID PRIMARY KEY,
			document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			section_name TEXT NOT NULL,
			anchor TEXT NOT NULL,
			text TEXT NOT NULL,
			token_count INT NOT NULL,
			see_also_refs TEXT[] NOT NULL DEFAULT '{}',
			constants TEXT[] NOT NULL DEFAULT '{}',
			search_vector TSVECTOR,
			embedding_model TEXT NOT NULL DEFAULT '',
			vector_key TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (document_id, anchor)
		)`,
		"CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_fts ON chunks USING GIN (search_vector)",
		"CREATE INDEX IF NOT EXISTS idx_chunks_text_trgm ON chunks USING GIN (text gin_trgm_ops)",
		"CREATE INDEX IF NOT EXISTS idx_documents_name_section ON documents(name, section)",
		`CREATE TABLE IF NOT EXISTS evaluation_queries (
			id UUID PRIMARY KEY,
			query TEXT NOT NULL UNIQUE,
			expected_documents TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS evaluation_runs (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			search_mode TEXT NOT NULL,
			result_limit INT NOT NULL,
			total_queries INT NOT NULL DEFAULT 0,
			scored_queries INT NOT NULL DEFAULT 0,
			hits INT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS evaluation_results (
			id UUID PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES evaluation_runs(id) ON DELETE CASCADE,
			query_id UUID NOT NULL REFERENCES evaluation_queries(id) ON DELETE CASCADE,
			answer TEXT NOT NULL DEFAULT '',
			retrieved_chunks UUID[] NOT NULL DEFAULT '{}',
			retrieved_documents TEXT[] NOT NULL DEFAULT '{}',
			scored BOOLEAN NOT NULL DEFAULT FALSE,
			hit BOOLEAN NOT NULL DEFAULT FALSE,
			score DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return errors.Wrap(err, "execute schema statement")
		}
	}
	return nil
}

// Clear drops all document and chunk rows. Chunks cascade from documents.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE chunks, documents"); err != nil {
		return errors.Wrap(err, "truncate documents and chunks")
	}
	return nil
}

type Stats struct {
	Documents        int
	Chunks           int
	ChunksBySection  map[string]int
	UnembeddedChunks int
}

func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{ChunksBySection: map[string]int{}}
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM documents").Scan(&stats.Documents); err != nil {
		return stats, errors.Wrap(err, "count documents")
	}
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chunks").Scan(&stats.Chunks); err != nil {
		return stats, errors.Wrap(err, "count chunks")
	}
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM chunks WHERE vector_key = ''").Scan(&stats.UnembeddedChunks); err != nil {
		return stats, errors.Wrap(err, "count unembedded chunks")
	}

	rows, err := s.pool.Query(ctx, "SELECT section_name, COUNT(*) FROM chunks GROUP BY section_name")
	if err != nil {
		return stats, errors.Wrap(err, "count chunks by section")
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return stats, errors.Wrap(err, "scan section count")
		}
		stats.ChunksBySection[name] = count
	}
	return stats, rows.Err()
}
