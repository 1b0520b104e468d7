// Package rag answers natural-language questions grounded in retrieved
// chunks, with source attribution and a direct-completion fallback when
// the structured generator fails.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/V4siliy/llm-manpage-rag/search"
	"github.com/V4siliy/llm-manpage-rag/store"
)

type Status string

const (
	StatusReceived   Status = "RECEIVED"
	StatusRetrieving Status = "RETRIEVING"
	StatusGenerating Status = "GENERATING"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusDegraded   Status = "DEGRADED"
	StatusFailed     Status = "FAILED"
)

var (
	ErrEmptyQuestion     = errors.New("question is empty")
	ErrNoContext         = errors.New("retrieval returned no chunks")
	ErrFallbackExhausted = errors.New("all generation backends failed")
)

// GenerationError marks a single backend's failure; the orchestrator
// reacts by falling back rather than failing the question.
type GenerationError struct {
	Generator string
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generator %s: %v", e.Generator, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Source is one distinct document that contributed context, carrying the
// best contributing chunk's score.
type Source struct {
	Document string  `json:"document"`
	Title    string  `json:"title"`
	Section  string  `json:"section"`
	Score    float64 `json:"similarity"`
}

type Result struct {
	Question      string
	Answer        string
	ContextChunks []store.SearchResult
	Sources       []Source
	Status        Status
	Generator     string
}

// Generator produces an answer from a question and its retrieved context.
type Generator interface {
	Name() string
	Generate(ctx context.Context, question string, chunks []store.SearchResult) (string, error)
}

// Retriever is the slice of the search engine the orchestrator needs.
type Retriever interface {
	Search(ctx context.Context, query string, mode search.Mode, limit int) ([]store.SearchResult, error)
}

type Orchestrator struct {
	engine          Retriever
	generators      []Generator
	mode            search.Mode
	topK            int
	retrieveTimeout time.Duration
	generateTimeout time.Duration
	logger          *zap.SugaredLogger
}

type OrchestratorOptions struct {
	Mode            search.Mode
	TopK            int
	RetrieveTimeout time.Duration
	GenerateTimeout time.Duration
}

// NewOrchestrator builds the ask pipeline. Generators are tried in order;
// the first success wins.
func NewOrchestrator(engine Retriever, generators []Generator, opts OrchestratorOptions, logger *zap.SugaredLogger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.Mode == "" {
		opts.Mode = search.ModeCombined
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.RetrieveTimeout <= 0 {
		opts.RetrieveTimeout = 15 * time.Second
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 60 * time.Second
	}
	return &Orchestrator{
		engine:          engine,
		generators:      generators,
		mode:            opts.Mode,
		topK:            opts.TopK,
		retrieveTimeout: opts.RetrieveTimeout,
		generateTimeout: opts.GenerateTimeout,
		logger:          logger,
	}
}

// Ask drives the question through retrieval and generation. The returned
// Result always lands in exactly one of SUCCEEDED, DEGRADED, or FAILED;
// FAILED results carry a non-nil error explaining why.
func (o *Orchestrator) Ask(ctx context.Context, question string) (Result, error) {
	result := Result{Question: question, Status: StatusReceived}

	question = strings.TrimSpace(question)
	if question == "" {
		result.Status = StatusFailed
		return result, ErrEmptyQuestion
	}
	result.Question = question

	result.Status = StatusRetrieving
	chunks, err := o.retrieve(ctx, question)
	if err != nil {
		result.Status = StatusFailed
		return result, fmt.Errorf("retrieve context: %w", err)
	}
	if len(chunks) == 0 {
		// Generation without grounding context invites hallucination.
		result.Status = StatusFailed
		return result, ErrNoContext
	}
	result.ContextChunks = chunks
	result.Sources = collectSources(chunks)

	result.Status = StatusGenerating
	for i, gen := range o.generators {
		answer, genErr := o.generate(ctx, gen, question, chunks)
		if genErr != nil {
			o.logger.Warnw("generator failed", "generator", gen.Name(), "error", genErr)
			if ctx.Err() != nil {
				result.Status = StatusFailed
				return result, ctx.Err()
			}
			continue
		}
		result.Answer = answer
		result.Generator = gen.Name()
		if i == 0 {
			result.Status = StatusSucceeded
		} else {
			result.Status = StatusDegraded
		}
		return result, nil
	}

	result.Status = StatusFailed
	return result, ErrFallbackExhausted
}

func (o *Orchestrator) retrieve(ctx context.Context, question string) ([]store.SearchResult, error) {
	rctx, cancel := context.WithTimeout(ctx, o.retrieveTimeout)
	defer cancel()
	return o.engine.Search(rctx, question, o.mode, o.topK)
}

func (o *Orchestrator) generate(ctx context.Context, gen Generator, question string, chunks []store.SearchResult) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, o.generateTimeout)
	defer cancel()

	answer, err := gen.Generate(gctx, question, chunks)
	if err != nil {
		return "", &GenerationError{Generator: gen.Name(), Err: err}
	}
	if strings.TrimSpace(answer) == "" {
		return "", &GenerationError{Generator: gen.Name(), Err: errors.New("empty answer")}
	}
	return answer, nil
}

// collectSources dedupes context chunks by document, keeping each
// document's best chunk score and the section it came from. Input order
// is score-descending, so the first sighting of a document wins.
func collectSources(chunks []store.SearchResult) []Source {
	seen := map[string]bool{}
	sources := make([]Source, 0, len(chunks))
	for _, ch := range chunks {
		doc := fmt.Sprintf("%s(%s)", ch.DocumentName, ch.DocumentSection)
		if seen[doc] {
			continue
		}
		seen[doc] = true
		sources = append(sources, Source{
			Document: doc,
			Title:    ch.DocumentTitle,
			Section:  ch.SectionName,
			Score:    ch.Score,
		})
	}
	return sources
}
