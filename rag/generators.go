package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/V4siliy/llm-manpage-rag/llm"
	"github.com/V4siliy/llm-manpage-rag/store"
)

const structuredSystemPrompt = `You are a Linux documentation expert. Answer questions about commands and
system functions using ONLY the numbered man-page excerpts provided.
Cite the excerpts you rely on with bracketed numbers like [1] or [2].
If the excerpts do not contain enough information, say so clearly.`

const directSystemPrompt = "You are a Linux documentation expert."

var citationRe = regexp.MustCompile(`\[\d+\]`)

// structuredGenerator is the primary backend: numbered context, mandatory
// citations, and validation that the model actually cited something.
type structuredGenerator struct {
	client llm.Client
}

func NewStructuredGenerator(client llm.Client) Generator {
	return &structuredGenerator{client: client}
}

func (g *structuredGenerator) Name() string { return "structured" }

func (g *structuredGenerator) Generate(ctx context.Context, question string, chunks []store.SearchResult) (string, error) {
	var b strings.Builder
	for i, ch := range chunks {
		fmt.Fprintf(&b, "[%d] %s(%s) - %s\nSection: %s\n%s\n\n",
			i+1, ch.DocumentName, ch.DocumentSection, ch.DocumentTitle, ch.SectionName, ch.Text)
	}

	answer, err := g.client.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: structuredSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Excerpts:\n\n%sQuestion: %s", b.String(), question)},
	})
	if err != nil {
		return "", err
	}
	if !citationRe.MatchString(answer) {
		return "", fmt.Errorf("answer carries no citations")
	}
	return answer, nil
}

// directGenerator is the fallback: one flat prompt with the raw context
// concatenated, no structural demands on the output.
type directGenerator struct {
	client llm.Client
}

func NewDirectGenerator(client llm.Client) Generator {
	return &directGenerator{client: client}
}

func (g *directGenerator) Name() string { return "direct" }

func (g *directGenerator) Generate(ctx context.Context, question string, chunks []store.SearchResult) (string, error) {
	var b strings.Builder
	for _, ch := range chunks {
		fmt.Fprintf(&b, "Document: %s(%s) - %s\nSection: %s\n%s\n\n",
			ch.DocumentName, ch.DocumentSection, ch.DocumentTitle, ch.SectionName, ch.Text)
	}

	prompt := fmt.Sprintf(`Use the provided context from man page documentation to answer the
user's question accurately.

Context from man pages:
%s
Question: %s

Provide a detailed answer based on the context above. If the context does
not contain enough information to answer the question, say so clearly.`, b.String(), question)

	return g.client.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: directSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	})
}
