package manpage

import (
	"fmt"
	"strings"
)

// ChunkRecord is one line of the JSONL chunk stream. It carries the owning
// document's identifying fields so an importer can create documents lazily
// as chunks referencing them are seen.
type ChunkRecord struct {
	DocumentName    string   `json:"name"`
	DocumentSection string   `json:"section"`
	DocumentTitle   string   `json:"title"`
	VersionTag      string   `json:"version_tag"`
	SourcePath      string   `json:"source_path"`
	License         string   `json:"license,omitempty"`
	Aliases         []string `json:"aliases,omitempty"`

	SectionName string   `json:"section_name"`
	Anchor      string   `json:"anchor"`
	Text        string   `json:"text"`
	TokenCount  int      `json:"token_count"`
	SeeAlsoRefs []string `json:"see_also_refs,omitempty"`
	Constants   []string `json:"constants,omitempty"`
}

// block is a paragraph or a code block; code blocks are never merged into
// surrounding prose so a split cannot land inside an example.
type block struct {
	text   string
	isCode bool
}

// splitBlocks breaks a section body into paragraphs, keeping fenced and
// indented code blocks intact.
func splitBlocks(text string) []block {
	var (
		blocks     []block
		paraLines  []string
		fenceLines []string
		inFence    bool
	)

	flushPara := func() {
		joined := strings.TrimSpace(strings.Join(paraLines, "\n"))
		if joined != "" {
			blocks = append(blocks, block{text: joined})
		}
		paraLines = paraLines[:0]
	}
	flushFence := func() {
		if len(fenceLines) > 0 {
			blocks = append(blocks, block{text: strings.TrimRight(strings.Join(fenceLines, "\n"), "\n "), isCode: true})
		}
		fenceLines = fenceLines[:0]
	}

	for _, ln := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(ln, "```"):
			if inFence {
				fenceLines = append(fenceLines, ln)
				flushFence()
				inFence = false
			} else {
				flushPara()
				inFence = true
				fenceLines = append(fenceLines, ln)
			}
		case inFence:
			fenceLines = append(fenceLines, ln)
		case strings.HasPrefix(ln, "    "):
			flushPara()
			blocks = append(blocks, block{text: strings.TrimRight(ln, " \t"), isCode: true})
		case strings.TrimSpace(ln) == "":
			flushPara()
		default:
			paraLines = append(paraLines, ln)
		}
	}
	if inFence {
		flushFence()
	} else {
		flushPara()
	}
	return blocks
}

// Chunker assembles section bodies into token-budgeted chunks with a
// word-safe overlap carried across each split. A prose block longer than
// the hard max is pre-split at word boundaries; code blocks never are.
type Chunker struct {
	target  int
	max     int
	overlap int
	tokens  *TokenCounter
}

func NewChunker(target, max, overlap int, tokens *TokenCounter) *Chunker {
	if max < target {
		max = target
	}
	return &Chunker{target: target, max: max, overlap: overlap, tokens: tokens}
}

// splitOversized breaks one prose block into word-boundary windows of at
// most target tokens.
func (c *Chunker) splitOversized(text string) []string {
	words := strings.Fields(text)
	var (
		parts []string
		cur   []string
		curTc int
	)
	for _, w := range words {
		wt := c.tokens.Count(w)
		if curTc+wt > c.target && len(cur) > 0 {
			parts = append(parts, strings.Join(cur, " "))
			cur = cur[:0]
			curTc = 0
		}
		cur = append(cur, w)
		curTc += wt
	}
	if len(cur) > 0 {
		parts = append(parts, strings.Join(cur, " "))
	}
	return parts
}

// ChunkSection emits chunks for one section of one document. Anchors are
// deterministic: document name + section number + heading slug + ordinal.
func (c *Chunker) ChunkSection(doc ChunkRecord, sectionName, body string) []ChunkRecord {
	blocks := splitBlocks(body)
	if len(blocks) == 0 {
		return nil
	}

	anchorBase := fmt.Sprintf("%s-%s-%s", doc.DocumentName, doc.DocumentSection, Slugify(sectionName))
	var (
		out       []ChunkRecord
		buffer    []string
		bufTokens int
		carryOnly bool // buffer holds nothing but the carried overlap
		seq       = 1
	)

	emit := func(carryTail bool) {
		text := strings.TrimSpace(strings.Join(buffer, "\n\n"))
		if text == "" {
			return
		}
		rec := doc
		rec.SectionName = sectionName
		rec.Anchor = fmt.Sprintf("%s-%02d", anchorBase, seq)
		rec.Text = text
		rec.TokenCount = c.tokens.Count(text)
		rec.SeeAlsoRefs = ExtractSeeAlsoRefs(text)
		rec.Constants = ExtractConstants(text)
		out = append(out, rec)
		seq++

		if carryTail && c.overlap > 0 {
			tail := c.tokens.Tail(text, c.overlap)
			if tail != "" {
				buffer = []string{tail}
				bufTokens = c.tokens.Count(tail)
				carryOnly = true
				return
			}
		}
		buffer = buffer[:0]
		bufTokens = 0
		carryOnly = false
	}

	for _, blk := range blocks {
		text := strings.TrimSpace(blk.text)
		if text == "" {
			continue
		}
		pieces := []string{text}
		if !blk.isCode && c.tokens.Count(text) > c.max {
			pieces = c.splitOversized(text)
		}
		for _, piece := range pieces {
			tc := c.tokens.Count(piece)
			if bufTokens+tc > c.target && len(buffer) > 0 && !carryOnly {
				emit(true)
			}
			buffer = append(buffer, piece)
			bufTokens += tc
			carryOnly = false
		}
	}
	// A trailing buffer that is nothing but the carried overlap would
	// duplicate content already chunked.
	if len(buffer) > 0 && !carryOnly {
		emit(false)
	}
	return out
}
