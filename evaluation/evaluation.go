// Package evaluation replays a fixed query set through the answer
// pipeline and records per-query outcomes for regression tracking.
package evaluation

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/V4siliy/llm-manpage-rag/store"
)

// QueryRecord is one line of an evaluation query file.
type QueryRecord struct {
	Question          string   `json:"question"`
	ExpectedDocuments []string `json:"expected_documents,omitempty"`
}

type LoadSummary struct {
	Total    int
	Inserted int
	Existing int
}

// LoadQueries reads JSONL query records and upserts them by question text.
// Loading the same file twice leaves the query count unchanged.
func LoadQueries(ctx context.Context, st *store.Store, r io.Reader, logger *zap.SugaredLogger) (LoadSummary, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	var summary LoadSummary
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec QueryRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return summary, errors.Wrapf(err, "parse query line %d", summary.Total+1)
		}
		rec.Question = strings.TrimSpace(rec.Question)
		if rec.Question == "" {
			return summary, errors.Errorf("query line %d has no question", summary.Total+1)
		}
		summary.Total++

		_, inserted, err := st.UpsertEvaluationQuery(ctx, rec.Question, rec.ExpectedDocuments)
		if err != nil {
			return summary, err
		}
		if inserted {
			summary.Inserted++
		} else {
			summary.Existing++
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, errors.Wrap(err, "read query stream")
	}
	logger.Infow("loaded evaluation queries",
		"total", summary.Total, "inserted", summary.Inserted, "existing", summary.Existing)
	return summary, nil
}
