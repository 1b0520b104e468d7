package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/V4siliy/llm-manpage-rag/manpage"
)

// ImportOptions controls a bulk load. Clear wipes existing rows first so a
// re-import fully replaces the corpus; without it, rows whose anchor already
// exists for the document are left untouched, so re-runs add nothing.
type ImportOptions struct {
	Clear     bool
	BatchSize int
}

type ImportSummary struct {
	Lines     int
	Inserted  int
	Duplicate int
	Malformed int
}

// ImportChunks streams a JSONL chunk file into the store, one transaction
// per batch. Documents are created lazily as chunks referencing them are
// seen; a NAME chunk upgrades the document's default title.
func (s *Store) ImportChunks(ctx context.Context, r io.Reader, opts ImportOptions, logger *zap.SugaredLogger) (ImportSummary, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}

	if opts.Clear {
		if err := s.Clear(ctx); err != nil {
			return ImportSummary{}, err
		}
		logger.Infow("cleared existing documents and chunks")
	}

	var (
		summary ImportSummary
		batch   []manpage.ChunkRecord
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		summary.Lines++

		var rec manpage.ChunkRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			summary.Malformed++
			logger.Warnw("skipping malformed import line", "line", summary.Lines, "error", err)
			continue
		}
		if err := validateRecord(rec); err != nil {
			summary.Malformed++
			logger.Warnw("skipping invalid import record", "line", summary.Lines, "error", err)
			continue
		}

		batch = append(batch, rec)
		if len(batch) >= opts.BatchSize {
			if err := s.importBatch(ctx, batch, &summary); err != nil {
				return summary, err
			}
			logger.Infow("imported batch", "lines", summary.Lines, "inserted", summary.Inserted)
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, errors.Wrap(err, "read import stream")
	}
	if len(batch) > 0 {
		if err := s.importBatch(ctx, batch, &summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func validateRecord(rec manpage.ChunkRecord) error {
	switch {
	case rec.DocumentName == "":
		return fmt.Errorf("missing document name")
	case rec.DocumentSection == "":
		return fmt.Errorf("missing document section")
	case rec.VersionTag == "":
		return fmt.Errorf("missing version tag")
	case rec.Anchor == "":
		return fmt.Errorf("missing anchor")
	case strings.TrimSpace(rec.Text) == "":
		return fmt.Errorf("empty chunk text")
	case rec.TokenCount <= 0:
		return fmt.Errorf("non-positive token count")
	}
	return nil
}

// importBatch writes one batch transactionally: either every document and
// chunk in the batch lands, or none do.
func (s *Store) importBatch(ctx context.Context, records []manpage.ChunkRecord, summary *ImportSummary) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin import transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	docIDs := map[string]uuid.UUID{}
	for _, rec := range records {
		key := rec.DocumentName + "\x00" + rec.DocumentSection + "\x00" + rec.VersionTag
		docID, ok := docIDs[key]
		if !ok {
			docID, err = upsertDocument(ctx, tx, rec)
			if err != nil {
				return err
			}
			docIDs[key] = docID
		}

		if rec.SectionName == "NAME" {
			// The NAME section carries the human title; prefer it over the
			// "name(section)" placeholder when it is longer.
			if _, err = tx.Exec(ctx,
				`UPDATE documents SET title = $2 WHERE id = $1 AND LENGTH(title) < LENGTH($2)`,
				docID, rec.DocumentTitle); err != nil {
				return errors.Wrap(err, "upgrade document title")
			}
		}

		tag, execErr := tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, section_name, anchor, text, token_count, see_also_refs, constants)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (document_id, anchor) DO NOTHING
		`, uuid.New(), docID, rec.SectionName, rec.Anchor, rec.Text, rec.TokenCount,
			emptyIfNil(rec.SeeAlsoRefs), emptyIfNil(rec.Constants))
		if execErr != nil {
			err = errors.Wrapf(execErr, "insert chunk %s", rec.Anchor)
			return err
		}
		if tag.RowsAffected() == 0 {
			summary.Duplicate++
		} else {
			summary.Inserted++
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit import transaction")
	}
	return nil
}

func upsertDocument(ctx context.Context, tx pgx.Tx, rec manpage.ChunkRecord) (uuid.UUID, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		INSERT INTO documents (id, name, section, title, source_path, license, aliases, version_tag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name, section, version_tag) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, uuid.New(), rec.DocumentName, rec.DocumentSection, rec.DocumentTitle,
		rec.SourcePath, rec.License, emptyIfNil(rec.Aliases), rec.VersionTag).Scan(&id)
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "upsert document %s(%s)", rec.DocumentName, rec.DocumentSection)
	}
	return id, nil
}

// emptyIfNil keeps NOT NULL array columns happy.
func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
