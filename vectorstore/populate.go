package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/V4siliy/llm-manpage-rag/embeddings"
	"github.com/V4siliy/llm-manpage-rag/store"
)

// ChunkSource is the relational side of population: listing chunks that
// still need a vector and tagging them once they have one. *store.Store
// implements it.
type ChunkSource interface {
	ListChunksMissingEmbedding(ctx context.Context, model string, force bool, limit int, after uuid.UUID) ([]store.EmbeddableChunk, error)
	MarkChunksEmbedded(ctx context.Context, ids []uuid.UUID, model string, keys []string) error
}

var _ ChunkSource = (*store.Store)(nil)

// Populator embeds chunks that have no vector for the configured model and
// upserts them into the vector store. Chunks already tagged with the model
// are skipped, so interrupted runs resume where they left off.
type Populator struct {
	store       ChunkSource
	vectors     Store
	embedder    embeddings.Embedder
	model       string
	dimension   int
	batchSize   int
	concurrency int
	maxRetries  int
	retryBase   time.Duration
	limiter     *rate.Limiter
	logger      *zap.SugaredLogger
}

type PopulatorOptions struct {
	Model       string
	Dimension   int
	BatchSize   int
	Concurrency int
	MaxRetries  int
	EmbedRate   float64
}

func NewPopulator(st ChunkSource, vectors Store, embedder embeddings.Embedder, opts PopulatorOptions, logger *zap.SugaredLogger) *Populator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.EmbedRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.EmbedRate), 1)
	}
	return &Populator{
		store:       st,
		vectors:     vectors,
		embedder:    embedder,
		model:       opts.Model,
		dimension:   opts.Dimension,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		maxRetries:  opts.MaxRetries,
		retryBase:   time.Second,
		limiter:     limiter,
		logger:      logger,
	}
}

type PopulateSummary struct {
	Scanned       int
	Embedded      int
	FailedBatches int
}

// Populate walks unembedded chunks in keyset order and processes batches
// concurrently. A failing batch is counted and skipped rather than aborting
// the run; a later run picks its chunks up again.
func (p *Populator) Populate(ctx context.Context, force bool) (PopulateSummary, error) {
	if err := p.vectors.EnsureCollection(ctx, p.dimension); err != nil {
		return PopulateSummary{}, fmt.Errorf("ensure collection: %w", err)
	}

	var (
		summary PopulateSummary
		mu      sync.Mutex
		after   uuid.UUID
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for {
		chunks, err := p.store.ListChunksMissingEmbedding(gctx, p.model, force, p.batchSize, after)
		if err != nil {
			_ = g.Wait()
			return summary, err
		}
		if len(chunks) == 0 {
			break
		}
		after = chunks[len(chunks)-1].ID

		batch := chunks
		g.Go(func() error {
			n, err := p.processBatch(gctx, batch)
			mu.Lock()
			summary.Scanned += len(batch)
			summary.Embedded += n
			if err != nil {
				summary.FailedBatches++
			}
			mu.Unlock()
			if err != nil {
				p.logger.Warnw("embedding batch failed", "chunks", len(batch), "error", err)
			}
			return nil
		})

		if len(chunks) < p.batchSize {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	p.logger.Infow("vector population finished",
		"scanned", summary.Scanned, "embedded", summary.Embedded, "failed_batches", summary.FailedBatches)
	return summary, nil
}

func (p *Populator) processBatch(ctx context.Context, chunks []store.EmbeddableChunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	vectors, err := p.embedWithRetry(ctx, texts)
	if err != nil {
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	points := make([]Point, len(chunks))
	ids := make([]uuid.UUID, len(chunks))
	keys := make([]string, len(chunks))
	for i, ch := range chunks {
		points[i] = Point{
			ChunkID:         ch.ID,
			Vector:          vectors[i],
			DocumentName:    ch.DocumentName,
			DocumentSection: ch.DocumentSection,
			SectionName:     ch.SectionName,
			Anchor:          ch.Anchor,
			Text:            ch.Text,
		}
		ids[i] = ch.ID
		keys[i] = ch.ID.String()
	}

	// The vectors are already in memory; transient store failures retry
	// around them rather than re-deriving embeddings.
	if err := p.withRetry(ctx, "upsert points", func() error {
		return p.vectors.Upsert(ctx, points)
	}); err != nil {
		return 0, err
	}
	// Tagging after the upsert means a crash between the two re-embeds the
	// batch next run; upserts are idempotent so that is safe.
	if err := p.withRetry(ctx, "mark chunks embedded", func() error {
		return p.store.MarkChunksEmbedded(ctx, ids, p.model, keys)
	}); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (p *Populator) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := p.withRetry(ctx, "embed batch", func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		var embedErr error
		vectors, embedErr = p.embedder.Embed(ctx, texts)
		return embedErr
	})
	return vectors, err
}

// withRetry runs fn up to maxRetries times with exponential backoff.
func (p *Populator) withRetry(ctx context.Context, what string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryBase << uint(attempt-1)):
			}
		}
		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("%s after %d attempts: %w", what, p.maxRetries, lastErr)
}
