package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type EvaluationQuery struct {
	ID                uuid.UUID
	Query             string
	ExpectedDocuments []string
	CreatedAt         time.Time
}

type EvaluationRun struct {
	ID            uuid.UUID
	Name          string
	SearchMode    string
	ResultLimit   int
	TotalQueries  int
	ScoredQueries int
	Hits          int
	StartedAt     time.Time
	CompletedAt   *time.Time
}

type EvaluationResult struct {
	ID                 uuid.UUID
	RunID              uuid.UUID
	QueryID            uuid.UUID
	Answer             string
	RetrievedChunks    []uuid.UUID
	RetrievedDocuments []string
	Scored             bool
	Hit                bool
	Score              float64
}

// UpsertEvaluationQuery loads a query by its text, creating it if absent.
// Re-loading the same query file is a no-op apart from refreshed
// expectations.
func (s *Store) UpsertEvaluationQuery(ctx context.Context, query string, expected []string) (uuid.UUID, bool, error) {
	var (
		id       uuid.UUID
		inserted bool
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO evaluation_queries (id, query, expected_documents)
		VALUES ($1, $2, $3)
		ON CONFLICT (query) DO UPDATE SET expected_documents = EXCLUDED.expected_documents
		RETURNING id, (xmax = 0)
	`, uuid.New(), query, expected).Scan(&id, &inserted)
	if err != nil {
		return uuid.Nil, false, errors.Wrap(err, "upsert evaluation query")
	}
	return id, inserted, nil
}

func (s *Store) ListEvaluationQueries(ctx context.Context) ([]EvaluationQuery, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, query, expected_documents, created_at
		FROM evaluation_queries ORDER BY created_at, query
	`)
	if err != nil {
		return nil, errors.Wrap(err, "list evaluation queries")
	}
	defer rows.Close()

	var out []EvaluationQuery
	for rows.Next() {
		var q EvaluationQuery
		if err := rows.Scan(&q.ID, &q.Query, &q.ExpectedDocuments, &q.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan evaluation query")
		}
		out = append(out, q)
	}
	return out, errors.Wrap(rows.Err(), "iterate evaluation queries")
}

// CreateEvaluationRun opens a new run. Runs are append-only; reruns never
// overwrite earlier results.
func (s *Store) CreateEvaluationRun(ctx context.Context, name, searchMode string, resultLimit, totalQueries int) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO evaluation_runs (id, name, search_mode, result_limit, total_queries)
		VALUES ($1, $2, $3, $4, $5)
	`, id, name, searchMode, resultLimit, totalQueries)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "create evaluation run")
	}
	return id, nil
}

func (s *Store) RecordEvaluationResult(ctx context.Context, res EvaluationResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO evaluation_results
			(id, run_id, query_id, answer, retrieved_chunks, retrieved_documents, scored, hit, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.New(), res.RunID, res.QueryID, res.Answer,
		res.RetrievedChunks, res.RetrievedDocuments, res.Scored, res.Hit, res.Score)
	return errors.Wrap(err, "record evaluation result")
}

func (s *Store) CompleteEvaluationRun(ctx context.Context, runID uuid.UUID, scored, hits int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE evaluation_runs
		SET scored_queries = $2, hits = $3, completed_at = NOW()
		WHERE id = $1
	`, runID, scored, hits)
	return errors.Wrap(err, "complete evaluation run")
}

func (s *Store) ListEvaluationRuns(ctx context.Context, limit int) ([]EvaluationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, search_mode, result_limit, total_queries, scored_queries, hits,
			started_at, completed_at
		FROM evaluation_runs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list evaluation runs")
	}
	defer rows.Close()

	var out []EvaluationRun
	for rows.Next() {
		var run EvaluationRun
		if err := rows.Scan(&run.ID, &run.Name, &run.SearchMode, &run.ResultLimit,
			&run.TotalQueries, &run.ScoredQueries, &run.Hits,
			&run.StartedAt, &run.CompletedAt); err != nil {
			return nil, errors.Wrap(err, "scan evaluation run")
		}
		out = append(out, run)
	}
	return out, errors.Wrap(rows.Err(), "iterate evaluation runs")
}
