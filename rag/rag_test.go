package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4siliy/llm-manpage-rag/llm"
	"github.com/V4siliy/llm-manpage-rag/search"
	"github.com/V4siliy/llm-manpage-rag/store"
)

type stubRetriever struct {
	results []store.SearchResult
	err     error
	calls   int
}

func (s *stubRetriever) Search(ctx context.Context, query string, mode search.Mode, limit int) ([]store.SearchResult, error) {
	s.calls++
	return s.results, s.err
}

type stubGenerator struct {
	name   string
	answer string
	err    error
	calls  int
}

func (s *stubGenerator) Name() string { return s.name }

func (s *stubGenerator) Generate(ctx context.Context, question string, chunks []store.SearchResult) (string, error) {
	s.calls++
	return s.answer, s.err
}

func lsChunks() []store.SearchResult {
	return []store.SearchResult{
		{
			ChunkID:         uuid.New(),
			DocumentName:    "ls",
			DocumentSection: "1",
			DocumentTitle:   "list directory contents",
			SectionName:     "DESCRIPTION",
			Anchor:          "ls-1-description-01",
			Text:            "List information about the FILEs.",
			Score:           0.9,
		},
		{
			ChunkID:         uuid.New(),
			DocumentName:    "ls",
			DocumentSection: "1",
			DocumentTitle:   "list directory contents",
			SectionName:     "OPTIONS",
			Anchor:          "ls-1-options-01",
			Text:            "-l use a long listing format.",
			Score:           0.7,
		},
		{
			ChunkID:         uuid.New(),
			DocumentName:    "dir",
			DocumentSection: "1",
			DocumentTitle:   "list directory contents",
			SectionName:     "NAME",
			Anchor:          "dir-1-name-01",
			Text:            "dir - list directory contents.",
			Score:           0.5,
		},
	}
}

func newTestOrchestrator(r Retriever, gens ...Generator) *Orchestrator {
	return NewOrchestrator(r, gens, OrchestratorOptions{}, nil)
}

func TestAskEmptyQuestionRejectedBeforeRetrieval(t *testing.T) {
	retriever := &stubRetriever{}
	orch := newTestOrchestrator(retriever, &stubGenerator{name: "structured", answer: "x"})

	result, err := orch.Ask(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Zero(t, retriever.calls, "retrieval must not run for an empty question")
}

func TestAskRetrievalErrorFails(t *testing.T) {
	retriever := &stubRetriever{err: errors.New("connection refused")}
	gen := &stubGenerator{name: "structured", answer: "x"}
	orch := newTestOrchestrator(retriever, gen)

	result, err := orch.Ask(context.Background(), "How do I use ls?")
	require.Error(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Zero(t, gen.calls, "generation must not run without context")
}

func TestAskNoContextFails(t *testing.T) {
	orch := newTestOrchestrator(&stubRetriever{}, &stubGenerator{name: "structured", answer: "x"})

	result, err := orch.Ask(context.Background(), "How do I use ls?")
	require.ErrorIs(t, err, ErrNoContext)
	assert.Equal(t, StatusFailed, result.Status)
}

func TestAskPrimarySucceeds(t *testing.T) {
	primary := &stubGenerator{name: "structured", answer: "Use ls -l. [1]"}
	fallback := &stubGenerator{name: "direct", answer: "fallback answer"}
	orch := newTestOrchestrator(&stubRetriever{results: lsChunks()}, primary, fallback)

	result, err := orch.Ask(context.Background(), "How do I use the ls command?")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, result.Status)
	assert.Equal(t, "structured", result.Generator)
	assert.Zero(t, fallback.calls)
	assert.Len(t, result.ContextChunks, 3)
	require.NotEmpty(t, result.Sources)
	assert.Equal(t, "ls(1)", result.Sources[0].Document)
}

func TestAskFallsBackToDegraded(t *testing.T) {
	primary := &stubGenerator{name: "structured", err: errors.New("model overloaded")}
	fallback := &stubGenerator{name: "direct", answer: "plain answer"}
	orch := newTestOrchestrator(&stubRetriever{results: lsChunks()}, primary, fallback)

	result, err := orch.Ask(context.Background(), "How do I use the ls command?")
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Equal(t, "direct", result.Generator)
	assert.NotEmpty(t, result.Answer)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestAskAllGeneratorsFail(t *testing.T) {
	primary := &stubGenerator{name: "structured", err: errors.New("down")}
	fallback := &stubGenerator{name: "direct", err: errors.New("also down")}
	orch := newTestOrchestrator(&stubRetriever{results: lsChunks()}, primary, fallback)

	result, err := orch.Ask(context.Background(), "How do I use the ls command?")
	require.ErrorIs(t, err, ErrFallbackExhausted)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Empty(t, result.Answer)
}

func TestAskEmptyAnswerTreatedAsFailure(t *testing.T) {
	primary := &stubGenerator{name: "structured", answer: "   "}
	fallback := &stubGenerator{name: "direct", answer: "real answer"}
	orch := newTestOrchestrator(&stubRetriever{results: lsChunks()}, primary, fallback)

	result, err := orch.Ask(context.Background(), "How do I use the ls command?")
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Equal(t, "real answer", result.Answer)
}

func TestCollectSourcesDedupesByDocument(t *testing.T) {
	sources := collectSources(lsChunks())
	require.Len(t, sources, 2)
	assert.Equal(t, "ls(1)", sources[0].Document)
	assert.InDelta(t, 0.9, sources[0].Score, 1e-9)
	assert.Equal(t, "DESCRIPTION", sources[0].Section)
	assert.Equal(t, "dir(1)", sources[1].Document)
}

type stubLLM struct {
	answer string
	err    error
}

func (s *stubLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	return s.answer, s.err
}

func TestStructuredGeneratorRequiresCitations(t *testing.T) {
	gen := NewStructuredGenerator(&stubLLM{answer: "an answer with no citations"})
	_, err := gen.Generate(context.Background(), "q", lsChunks())
	require.Error(t, err)

	gen = NewStructuredGenerator(&stubLLM{answer: "ls -l prints a long listing [1]."})
	answer, err := gen.Generate(context.Background(), "q", lsChunks())
	require.NoError(t, err)
	assert.Contains(t, answer, "[1]")
}

func TestDirectGeneratorPassesThrough(t *testing.T) {
	gen := NewDirectGenerator(&stubLLM{answer: "plain prose"})
	answer, err := gen.Generate(context.Background(), "q", lsChunks())
	require.NoError(t, err)
	assert.Equal(t, "plain prose", answer)
}
