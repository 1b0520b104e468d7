package store

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PopulateSearchVectors rebuilds the lexical index for rows whose tsvector
// is missing, in batches to bound memory. Rows that already carry a vector
// are untouched, so the pass is safe to run repeatedly.
func (s *Store) PopulateSearchVectors(ctx context.Context, batchSize int, logger *zap.SugaredLogger) (int, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if batchSize <= 0 {
		batchSize = 1000
	}

	total := 0
	for {
		tag, err := s.pool.Exec(ctx, `
			UPDATE chunks SET search_vector = to_tsvector('simple', text)
			WHERE id IN (
				SELECT id FROM chunks WHERE search_vector IS NULL LIMIT $1
			)
		`, batchSize)
		if err != nil {
			return total, errors.Wrap(err, "populate search vectors batch")
		}
		updated := int(tag.RowsAffected())
		total += updated
		if updated > 0 {
			logger.Infow("populated search vectors", "batch", updated, "total", total)
		}
		if updated < batchSize {
			return total, nil
		}
	}
}
