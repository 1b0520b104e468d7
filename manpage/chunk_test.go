package manpage

import (
	"strings"
	"testing"
)

func testDoc() ChunkRecord {
	return ChunkRecord{
		DocumentName:    "ls",
		DocumentSection: "1",
		DocumentTitle:   "list directory contents",
		VersionTag:      "6.9",
	}
}

func repeatSentence(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "The quick brown fox jumps over the lazy dog near the river bank."
	}
	return strings.Join(parts, " ")
}

func TestChunkSectionSingleChunkWithinBudget(t *testing.T) {
	c := NewChunker(550, 700, 60, NewTokenCounter())
	chunks := c.ChunkSection(testDoc(), "NAME", "ls - list directory contents")
	if len(chunks) != 1 {
		t.Fatalf("expected one chunk, got %d", len(chunks))
	}
	if chunks[0].Anchor != "ls-1-name-01" {
		t.Fatalf("unexpected anchor %q", chunks[0].Anchor)
	}
	if chunks[0].TokenCount <= 0 {
		t.Fatalf("expected positive token count, got %d", chunks[0].TokenCount)
	}
	if chunks[0].SectionName != "NAME" {
		t.Fatalf("unexpected section name %q", chunks[0].SectionName)
	}
}

func TestChunkSectionSplitsLongSection(t *testing.T) {
	c := NewChunker(100, 130, 20, NewTokenCounter())

	paras := make([]string, 8)
	for i := range paras {
		paras[i] = repeatSentence(3)
	}
	body := strings.Join(paras, "\n\n")

	chunks := c.ChunkSection(testDoc(), "DESCRIPTION", body)
	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %d chunks", len(chunks))
	}

	seen := map[string]bool{}
	for _, ch := range chunks {
		if seen[ch.Anchor] {
			t.Fatalf("duplicate anchor %q", ch.Anchor)
		}
		seen[ch.Anchor] = true
		if ch.TokenCount <= 0 {
			t.Fatalf("chunk %s has non-positive token count", ch.Anchor)
		}
		if strings.TrimSpace(ch.Text) == "" {
			t.Fatalf("chunk %s has empty text", ch.Anchor)
		}
	}
}

func TestChunkSectionNoMidWordSplits(t *testing.T) {
	c := NewChunker(50, 60, 10, NewTokenCounter())
	body := repeatSentence(40)

	vocab := map[string]bool{}
	for _, w := range strings.Fields(body) {
		vocab[w] = true
	}

	chunks := c.ChunkSection(testDoc(), "DESCRIPTION", body)
	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %d chunks", len(chunks))
	}
	for _, ch := range chunks {
		for _, w := range strings.Fields(ch.Text) {
			if !vocab[w] {
				t.Fatalf("chunk %s contains fragment %q not present as a whole word in the source", ch.Anchor, w)
			}
		}
	}
}

func TestChunkSectionCarriesOverlap(t *testing.T) {
	overlap := 15
	c := NewChunker(60, 80, overlap, NewTokenCounter())
	body := repeatSentence(40)

	chunks := c.ChunkSection(testDoc(), "DESCRIPTION", body)
	if len(chunks) < 2 {
		t.Fatalf("expected a split, got %d chunks", len(chunks))
	}

	for i := 1; i < len(chunks); i++ {
		tail := c.tokens.Tail(chunks[i-1].Text, overlap)
		if tail == "" {
			continue
		}
		if !strings.HasPrefix(chunks[i].Text, tail) {
			t.Fatalf("chunk %d does not start with the previous chunk's tail", i)
		}
	}
}

func TestChunkSectionKeepsCodeBlocksIntact(t *testing.T) {
	c := NewChunker(30, 40, 5, NewTokenCounter())
	code := "```\nfor f in *.txt; do\n  wc -l \"$f\"\ndone\n```"
	body := repeatSentence(10) + "\n\n" + code + "\n\n" + repeatSentence(10)

	chunks := c.ChunkSection(testDoc(), "EXAMPLES", body)
	found := false
	for _, ch := range chunks {
		if strings.Contains(ch.Text, code) {
			found = true
		}
	}
	if !found {
		t.Fatal("code block was split across chunks")
	}
}

func TestChunkSectionEmptyBody(t *testing.T) {
	c := NewChunker(550, 700, 60, NewTokenCounter())
	if chunks := c.ChunkSection(testDoc(), "NOTES", "  \n\n  "); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty body, got %d", len(chunks))
	}
}

func TestChunkSectionDeterministic(t *testing.T) {
	c := NewChunker(80, 100, 10, NewTokenCounter())
	body := repeatSentence(30)

	first := c.ChunkSection(testDoc(), "OPTIONS", body)
	second := c.ChunkSection(testDoc(), "OPTIONS", body)
	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Anchor != second[i].Anchor || first[i].Text != second[i].Text {
			t.Fatalf("chunk %d differs between runs", i)
		}
	}
}
