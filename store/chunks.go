package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// EmbeddableChunk is a chunk joined with the document metadata that goes
// into the vector store payload.
type EmbeddableChunk struct {
	ID              uuid.UUID
	Text            string
	Anchor          string
	SectionName     string
	TokenCount      int
	DocumentName    string
	DocumentSection string
	DocumentTitle   string
	VersionTag      string
}

// ListChunksMissingEmbedding returns up to limit chunks that do not yet
// carry an entry for the given embedding model. With force, every chunk
// qualifies regardless of its current tag.
func (s *Store) ListChunksMissingEmbedding(ctx context.Context, model string, force bool, limit int, after uuid.UUID) ([]EmbeddableChunk, error) {
	query := `
		SELECT c.id, c.text, c.anchor, c.section_name, c.token_count,
			d.name, d.section, d.title, d.version_tag
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.id > $1 AND ($2 OR c.embedding_model <> $3 OR c.vector_key = '')
		ORDER BY c.id
		LIMIT $4`
	rows, err := s.pool.Query(ctx, query, after, force, model, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list chunks missing embedding")
	}
	defer rows.Close()

	var out []EmbeddableChunk
	for rows.Next() {
		var ch EmbeddableChunk
		if err := rows.Scan(&ch.ID, &ch.Text, &ch.Anchor, &ch.SectionName, &ch.TokenCount,
			&ch.DocumentName, &ch.DocumentSection, &ch.DocumentTitle, &ch.VersionTag); err != nil {
			return nil, errors.Wrap(err, "scan embeddable chunk")
		}
		out = append(out, ch)
	}
	return out, errors.Wrap(rows.Err(), "iterate embeddable chunks")
}

// MarkChunksEmbedded records the embedding model and vector-store key on
// the chunks after a successful upsert.
func (s *Store) MarkChunksEmbedded(ctx context.Context, ids []uuid.UUID, model string, keys []string) error {
	if len(ids) != len(keys) {
		return errors.Errorf("ids/keys length mismatch: %d vs %d", len(ids), len(keys))
	}
	for i, id := range ids {
		if _, err := s.pool.Exec(ctx,
			"UPDATE chunks SET embedding_model = $2, vector_key = $3 WHERE id = $1",
			id, model, keys[i]); err != nil {
			return errors.Wrapf(err, "mark chunk %s embedded", id)
		}
	}
	return nil
}
