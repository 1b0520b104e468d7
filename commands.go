package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/V4siliy/llm-manpage-rag/embeddings"
	"github.com/V4siliy/llm-manpage-rag/evaluation"
	"github.com/V4siliy/llm-manpage-rag/llm"
	"github.com/V4siliy/llm-manpage-rag/manpage"
	"github.com/V4siliy/llm-manpage-rag/rag"
	"github.com/V4siliy/llm-manpage-rag/search"
	"github.com/V4siliy/llm-manpage-rag/store"
	"github.com/V4siliy/llm-manpage-rag/vectorstore"
)

var (
	ingestRoot     string
	ingestDownload bool
	ingestCacheDir string
	ingestLimit    int
	ingestOut      string

	importFile  string
	importClear bool

	embedForce bool

	searchMode  string
	searchLimit int

	evalFile      string
	evalRunName   string
	evalRunLimit  int
	evalListLimit int

	clearVectors bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Render a man-page corpus into a JSONL chunk stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		root := ingestRoot
		if ingestDownload {
			dest := filepath.Join(ingestCacheDir, fmt.Sprintf("man-pages-%s.tar.xz", cfg.VersionTag))
			archive, sum, err := manpage.FetchArchive(&http.Client{Timeout: 5 * time.Minute}, cfg.VersionTag, dest)
			if err != nil {
				return fmt.Errorf("fetch corpus archive: %w", err)
			}
			logger.Infow("fetched corpus archive", "path", archive, "sha256", sum)
			root, err = manpage.ExtractTarXz(archive, ingestCacheDir)
			if err != nil {
				return fmt.Errorf("extract corpus archive: %w", err)
			}
		}
		if root == "" {
			return fmt.Errorf("either --root or --download is required")
		}

		out, err := os.Create(ingestOut)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer out.Close()
		enc := json.NewEncoder(out)

		chunker := manpage.NewChunker(cfg.Chunks.TargetTokens, cfg.Chunks.MaxTokens,
			cfg.Chunks.OverlapTokens, manpage.NewTokenCounter())
		pipeline := manpage.NewPipeline(manpage.DefaultRenderers(), chunker,
			cfg.VersionTag, cfg.Concurrency, logger)

		summary, err := pipeline.Run(ctx, manpage.Options{Root: root, Limit: ingestLimit},
			func(rec manpage.ChunkRecord) error { return enc.Encode(rec) })
		if err != nil {
			return err
		}
		logger.Infow("ingestion complete", "documents", summary.Documents,
			"chunks", summary.Chunks, "skipped", summary.Skipped, "renderers", summary.Renderers)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a JSONL chunk stream into Postgres",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		f, err := os.Open(importFile)
		if err != nil {
			return fmt.Errorf("open chunk file: %w", err)
		}
		defer f.Close()

		summary, err := st.ImportChunks(ctx, f,
			store.ImportOptions{Clear: importClear, BatchSize: cfg.BatchSize}, logger)
		if err != nil {
			return err
		}
		logger.Infow("import complete", "lines", summary.Lines, "inserted", summary.Inserted,
			"duplicate", summary.Duplicate, "malformed", summary.Malformed)
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Populate missing lexical search vectors",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		n, err := st.PopulateSearchVectors(ctx, cfg.BatchSize, logger)
		if err != nil {
			return err
		}
		logger.Infow("lexical index populated", "updated", n)
		return nil
	},
}

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed chunks and upsert them into the vector store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		embedder, err := embeddings.NewEmbedder(cfg)
		if err != nil {
			return err
		}
		vectors, err := vectorstore.New(cfg, st.Pool())
		if err != nil {
			return err
		}

		populator := vectorstore.NewPopulator(st, vectors, embedder, vectorstore.PopulatorOptions{
			Model:       cfg.Embeddings.Model,
			Dimension:   cfg.Embeddings.Dimension,
			BatchSize:   cfg.BatchSize,
			Concurrency: cfg.Concurrency,
			MaxRetries:  cfg.MaxRetries,
			EmbedRate:   cfg.EmbedRate,
		}, logger)

		summary, err := populator.Populate(ctx, embedForce)
		if err != nil {
			return err
		}
		logger.Infow("embedding complete", "scanned", summary.Scanned,
			"embedded", summary.Embedded, "failed_batches", summary.FailedBatches)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the corpus in lexical, fuzzy, vector, or combined mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		mode, err := search.ParseMode(searchMode)
		if err != nil {
			return err
		}

		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		engine, err := buildEngine(st, mode)
		if err != nil {
			return err
		}
		results, err := engine.Search(ctx, args[0], mode, searchLimit)
		if err != nil {
			return err
		}

		for i, r := range results {
			fmt.Printf("%2d. %s(%s) %s [%s] score=%.3f\n", i+1,
				r.DocumentName, r.DocumentSection, r.SectionName, r.Anchor, r.Score)
			fmt.Printf("    %s\n", firstLine(r.Text))
		}
		if len(results) == 0 {
			fmt.Println("no results")
		}
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question grounded in retrieved man-page chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		orch, err := buildOrchestrator(st)
		if err != nil {
			return err
		}

		result, err := orch.Ask(ctx, args[0])
		if err != nil {
			return fmt.Errorf("ask failed (%s): %w", result.Status, err)
		}

		fmt.Println(result.Answer)
		fmt.Printf("\nstatus: %s (%s)\nsources:\n", result.Status, result.Generator)
		for _, src := range result.Sources {
			fmt.Printf("  - %s %s (%s) score=%.3f\n", src.Document, src.Title, src.Section, src.Score)
		}
		return nil
	},
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Load, run, and list evaluation query sets",
}

var evalLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load evaluation queries from a JSONL file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		f, err := os.Open(evalFile)
		if err != nil {
			return fmt.Errorf("open query file: %w", err)
		}
		defer f.Close()

		summary, err := evaluation.LoadQueries(ctx, st, f, logger)
		if err != nil {
			return err
		}
		fmt.Printf("loaded %d queries (%d new, %d existing)\n",
			summary.Total, summary.Inserted, summary.Existing)
		return nil
	},
}

var evalRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Replay loaded queries through the ask pipeline and score retrieval",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		orch, err := buildOrchestrator(st)
		if err != nil {
			return err
		}
		harness := evaluation.NewHarness(st, orch, nil, logger)

		summary, err := harness.Run(ctx, evaluation.RunOptions{
			Name:       evalRunName,
			SearchMode: string(search.ModeCombined),
			Limit:      evalRunLimit,
			TopK:       cfg.Search.TopK,
		})
		if err != nil {
			return err
		}
		fmt.Printf("run %s: %d queries, %d scored, %d hits (hit rate %.2f, MRR %.3f, recall@1/5/10 %.2f/%.2f/%.2f, %d failed)\n",
			summary.RunID, summary.Total, summary.Scored, summary.Hits,
			summary.HitRate, summary.MeanMRR,
			summary.RecallAt1, summary.RecallAt5, summary.RecallAt10, summary.Failed)
		return nil
	},
}

var evalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evaluation runs with aggregate hit rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		harness := evaluation.NewHarness(st, nil, nil, logger)
		listings, err := harness.ListRuns(ctx, evalListLimit)
		if err != nil {
			return err
		}
		for _, l := range listings {
			status := "running"
			if l.Run.CompletedAt != nil {
				status = l.Run.CompletedAt.Format(time.RFC3339)
			}
			fmt.Printf("%s  %-20s mode=%-8s scored=%d/%d hits=%d rate=%.2f  %s\n",
				l.Run.ID, l.Run.Name, l.Run.SearchMode,
				l.Run.ScoredQueries, l.Run.TotalQueries, l.Run.Hits, l.HitRate, status)
		}
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all documents and chunks, optionally the vector collection too",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		if err := st.Clear(ctx); err != nil {
			return err
		}
		logger.Infow("cleared documents and chunks")

		if clearVectors {
			vectors, err := vectorstore.New(cfg, st.Pool())
			if err != nil {
				return err
			}
			if err := vectors.Drop(ctx); err != nil {
				return err
			}
			logger.Infow("dropped vector collection")
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, closeStore, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		stats, err := st.GetStats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("documents: %d\nchunks: %d\nunembedded: %d\n",
			stats.Documents, stats.Chunks, stats.UnembeddedChunks)
		for name, count := range stats.ChunksBySection {
			fmt.Printf("  %-16s %d\n", name, count)
		}
		return nil
	},
}

// buildEngine wires the retrieval engine. Vector dependencies are only
// required for modes that use them.
func buildEngine(st *store.Store, mode search.Mode) (*search.Engine, error) {
	var (
		embedder embeddings.Embedder
		vectors  vectorstore.Store
	)
	if mode == search.ModeVector || mode == search.ModeCombined {
		var err error
		embedder, err = embeddings.NewEmbedder(cfg)
		if err != nil {
			if mode == search.ModeVector {
				return nil, err
			}
			logger.Warnw("embedder unavailable, combined mode degrades to lexical", "error", err)
		} else {
			vectors, err = vectorstore.New(cfg, st.Pool())
			if err != nil {
				return nil, err
			}
		}
	}
	return search.NewEngine(st, vectors, embedder, search.Options{
		LexicalWeight:  cfg.Search.LexicalWeight,
		VectorWeight:   cfg.Search.VectorWeight,
		FuzzyThreshold: cfg.Search.FuzzyThreshold,
	}, logger), nil
}

func buildOrchestrator(st *store.Store) (*rag.Orchestrator, error) {
	engine, err := buildEngine(st, search.ModeCombined)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	generators := []rag.Generator{
		rag.NewStructuredGenerator(client),
		rag.NewDirectGenerator(client),
	}
	return rag.NewOrchestrator(engine, generators, rag.OrchestratorOptions{
		Mode:            search.ModeCombined,
		TopK:            cfg.Search.TopK,
		RetrieveTimeout: cfg.StoreTimeout,
		GenerateTimeout: cfg.LLM.Timeout,
	}, logger), nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
		if i > 160 {
			return s[:i] + "..."
		}
	}
	return s
}

func init() {
	ingestCmd.Flags().StringVar(&ingestRoot, "root", "", "extracted man-pages corpus directory")
	ingestCmd.Flags().BoolVar(&ingestDownload, "download", false, "download the corpus archive for the configured version")
	ingestCmd.Flags().StringVar(&ingestCacheDir, "cache", "corpus", "directory for downloaded archives")
	ingestCmd.Flags().IntVar(&ingestLimit, "limit", 0, "process at most N source files")
	ingestCmd.Flags().StringVar(&ingestOut, "out", "chunks.jsonl", "output JSONL file")

	importCmd.Flags().StringVar(&importFile, "file", "chunks.jsonl", "JSONL chunk file to import")
	importCmd.Flags().BoolVar(&importClear, "clear", false, "drop existing documents and chunks first")

	embedCmd.Flags().BoolVar(&embedForce, "force", false, "re-embed chunks already tagged with the current model")

	searchCmd.Flags().StringVar(&searchMode, "mode", string(search.ModeCombined), "lexical, fuzzy, vector, or combined")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")

	evalLoadCmd.Flags().StringVar(&evalFile, "file", "evaluation.jsonl", "JSONL evaluation query file")
	evalRunCmd.Flags().StringVar(&evalRunName, "name", "manual", "run name")
	evalRunCmd.Flags().IntVar(&evalRunLimit, "limit", 0, "evaluate at most N queries")
	evalListCmd.Flags().IntVar(&evalListLimit, "limit", 20, "show at most N runs")
	evalCmd.AddCommand(evalLoadCmd, evalRunCmd, evalListCmd)

	clearCmd.Flags().BoolVar(&clearVectors, "vectors", false, "also drop the vector collection")

	rootCmd.AddCommand(ingestCmd, importCmd, indexCmd, embedCmd, searchCmd, askCmd, evalCmd, clearCmd, statsCmd)
}
