package evaluation

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/V4siliy/llm-manpage-rag/rag"
	"github.com/V4siliy/llm-manpage-rag/store"
)

type Harness struct {
	store  *store.Store
	orch   *rag.Orchestrator
	scorer Scorer
	logger *zap.SugaredLogger
}

func NewHarness(st *store.Store, orch *rag.Orchestrator, scorer Scorer, logger *zap.SugaredLogger) *Harness {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if scorer == nil {
		scorer = DefaultScorer
	}
	return &Harness{store: st, orch: orch, scorer: scorer, logger: logger}
}

type RunOptions struct {
	Name       string
	SearchMode string
	Limit      int // cap on queries evaluated; 0 means all
	TopK       int
}

type RunSummary struct {
	RunID      uuid.UUID
	Total      int
	Scored     int
	Hits       int
	HitRate    float64
	MeanMRR    float64
	RecallAt1  float64
	RecallAt5  float64
	RecallAt10 float64
	Failed     int
}

// queryScore is the outcome of scoring one replayed query.
type queryScore struct {
	scored   bool
	hit      bool
	score    float64
	rr       float64
	recall1  float64
	recall5  float64
	recall10 float64
}

// scoreQuery scores one query against its expectations. A failed ask with
// expectations is a scored miss, so a retrieval regression drags the
// aggregates down instead of vanishing from them.
func (h *Harness) scoreQuery(expected, retrieved []string, askErr error) queryScore {
	if len(expected) == 0 {
		return queryScore{}
	}
	if askErr != nil {
		return queryScore{scored: true}
	}
	hit, score := h.scorer(expected, retrieved)
	return queryScore{
		scored:   true,
		hit:      hit,
		score:    score,
		rr:       ReciprocalRank(expected, retrieved),
		recall1:  RecallAtK(expected, retrieved, 1),
		recall5:  RecallAtK(expected, retrieved, 5),
		recall10: RecallAtK(expected, retrieved, 10),
	}
}

// Run replays every loaded query through the orchestrator and records the
// outcome. Queries without expectations are recorded unscored for manual
// review. Per-query failures are counted, not fatal.
func (h *Harness) Run(ctx context.Context, opts RunOptions) (RunSummary, error) {
	queries, err := h.store.ListEvaluationQueries(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	if len(queries) == 0 {
		return RunSummary{}, errors.New("no evaluation queries loaded")
	}
	if opts.Limit > 0 && len(queries) > opts.Limit {
		queries = queries[:opts.Limit]
	}

	runID, err := h.store.CreateEvaluationRun(ctx, opts.Name, opts.SearchMode, opts.TopK, len(queries))
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{RunID: runID, Total: len(queries)}
	var mrrSum, recall1Sum, recall5Sum, recall10Sum float64

	for _, q := range queries {
		res, askErr := h.orch.Ask(ctx, q.Query)
		if askErr != nil && ctx.Err() != nil {
			return summary, ctx.Err()
		}

		retrievedChunks := make([]uuid.UUID, 0, len(res.ContextChunks))
		retrievedDocs := make([]string, 0, len(res.ContextChunks))
		docSeen := map[string]bool{}
		for _, ch := range res.ContextChunks {
			retrievedChunks = append(retrievedChunks, ch.ChunkID)
			if !docSeen[ch.DocumentName] {
				docSeen[ch.DocumentName] = true
				retrievedDocs = append(retrievedDocs, ch.DocumentName)
			}
		}

		record := store.EvaluationResult{
			RunID:              runID,
			QueryID:            q.ID,
			Answer:             res.Answer,
			RetrievedChunks:    retrievedChunks,
			RetrievedDocuments: retrievedDocs,
		}

		if askErr != nil {
			summary.Failed++
			h.logger.Warnw("evaluation query failed", "query", q.Query, "error", askErr)
		}
		if qs := h.scoreQuery(q.ExpectedDocuments, retrievedDocs, askErr); qs.scored {
			record.Scored = true
			record.Hit = qs.hit
			record.Score = qs.score
			summary.Scored++
			if qs.hit {
				summary.Hits++
			}
			mrrSum += qs.rr
			recall1Sum += qs.recall1
			recall5Sum += qs.recall5
			recall10Sum += qs.recall10
		}

		if err := h.store.RecordEvaluationResult(ctx, record); err != nil {
			return summary, err
		}
	}

	if summary.Scored > 0 {
		scored := float64(summary.Scored)
		summary.HitRate = float64(summary.Hits) / scored
		summary.MeanMRR = mrrSum / scored
		summary.RecallAt1 = recall1Sum / scored
		summary.RecallAt5 = recall5Sum / scored
		summary.RecallAt10 = recall10Sum / scored
	}
	if err := h.store.CompleteEvaluationRun(ctx, runID, summary.Scored, summary.Hits); err != nil {
		return summary, err
	}

	h.logger.Infow("evaluation run complete", "run_id", runID, "name", opts.Name,
		"total", summary.Total, "scored", summary.Scored, "hits", summary.Hits,
		"hit_rate", summary.HitRate, "mrr", summary.MeanMRR,
		"recall_at_1", summary.RecallAt1, "recall_at_5", summary.RecallAt5,
		"recall_at_10", summary.RecallAt10, "failed", summary.Failed)
	return summary, nil
}

// RunListing is a completed or in-flight run with its aggregate hit rate.
type RunListing struct {
	Run     store.EvaluationRun
	HitRate float64
}

func (h *Harness) ListRuns(ctx context.Context, limit int) ([]RunListing, error) {
	runs, err := h.store.ListEvaluationRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RunListing, len(runs))
	for i, run := range runs {
		out[i] = RunListing{Run: run}
		if run.ScoredQueries > 0 {
			out[i].HitRate = float64(run.Hits) / float64(run.ScoredQueries)
		}
	}
	return out, nil
}
