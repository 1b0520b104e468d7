// Package manpage implements the ingestion pipeline: it discovers man-page
// sources in a corpus, renders them to text through an external renderer
// chain, parses section structure, and emits token-budgeted chunk records.
package manpage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyCorpus is fatal: every source file failed or the corpus had no
// recognizable pages at all.
var ErrEmptyCorpus = errors.New("ingestion produced no chunks")

var unsafeNameRe = regexp.MustCompile(`[/\\:*?"<>|]`)

type Options struct {
	// Root is an extracted corpus directory. Limit > 0 caps the number of
	// source files processed, applied before rendering.
	Root  string
	Limit int
}

type Summary struct {
	Documents int
	Chunks    int
	Skipped   int
	Renderers map[string]int
}

type Pipeline struct {
	renderers   []Renderer
	chunker     *Chunker
	versionTag  string
	concurrency int
	logger      *zap.SugaredLogger
}

func NewPipeline(renderers []Renderer, chunker *Chunker, versionTag string, concurrency int, logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pipeline{
		renderers:   renderers,
		chunker:     chunker,
		versionTag:  versionTag,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run processes the corpus and calls emit for every chunk record, in
// deterministic document order. A file that fails to render or parse is
// logged and skipped; a run that yields nothing at all is an error.
func (p *Pipeline) Run(ctx context.Context, opts Options, emit func(ChunkRecord) error) (Summary, error) {
	files, err := Discover(opts.Root, opts.Limit)
	if err != nil {
		return Summary{}, fmt.Errorf("discover corpus files: %w", err)
	}
	p.logger.Infow("discovered man sources", "count", len(files), "root", opts.Root)

	type fileResult struct {
		chunks   []ChunkRecord
		renderer string
		err      error
	}
	results := make([]fileResult, len(files))

	// Rendering shells out and dominates the cost, so files are processed
	// by a bounded pool; emission stays sequential to keep output order
	// deterministic.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			chunks, renderer, err := p.processFile(gctx, path)
			results[i] = fileResult{chunks: chunks, renderer: renderer, err: err}
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{Renderers: map[string]int{}}
	for i, res := range results {
		if res.err != nil {
			summary.Skipped++
			p.logger.Warnw("skipping source file", "path", files[i], "error", res.err)
			continue
		}
		if len(res.chunks) == 0 {
			summary.Skipped++
			continue
		}
		summary.Documents++
		summary.Renderers[res.renderer]++
		for _, ch := range res.chunks {
			if err := emit(ch); err != nil {
				return summary, fmt.Errorf("emit chunk %s: %w", ch.Anchor, err)
			}
			summary.Chunks++
		}
	}

	if summary.Chunks == 0 {
		return summary, ErrEmptyCorpus
	}
	return summary, nil
}

func (p *Pipeline) processFile(ctx context.Context, path string) ([]ChunkRecord, string, error) {
	rendered, renderer, err := RenderPage(ctx, p.renderers, path)
	if err != nil {
		return nil, "", err
	}

	sections := ParseSections(NormalizeWhitespace(rendered))
	if len(sections) == 0 {
		return nil, renderer, fmt.Errorf("no sections parsed from %s", filepath.Base(path))
	}

	doc := p.documentRecord(path, sections)
	seen := map[string]bool{}
	var chunks []ChunkRecord
	for _, sec := range sections {
		for _, ch := range p.chunker.ChunkSection(doc, sec.Name, sec.Body) {
			ch.Anchor = uniqueAnchor(seen, ch.Anchor)
			chunks = append(chunks, ch)
		}
	}
	return chunks, renderer, nil
}

// uniqueAnchor records the anchor as seen, bumping a numeric suffix when a
// repeated source heading produces the same anchor twice.
func uniqueAnchor(seen map[string]bool, anchor string) string {
	unique := anchor
	for n := 2; seen[unique]; n++ {
		unique = fmt.Sprintf("%s-%d", anchor, n)
	}
	seen[unique] = true
	return unique
}

func (p *Pipeline) documentRecord(path string, sections []Section) ChunkRecord {
	sectionNum := DetectSection(path)
	if sectionNum == "" {
		sectionNum = "0"
	}

	name := strings.SplitN(filepath.Base(path), ".", 2)[0]
	title := ""
	var aliases []string
	for _, sec := range sections {
		if sec.Name == "NAME" {
			if n, t, a := ParseNameSection(sec.Body); n != "" {
				name, title, aliases = n, t, a
			}
			break
		}
	}
	name = strings.Trim(unsafeNameRe.ReplaceAllString(name, "_"), "_")
	if title == "" {
		title = fmt.Sprintf("%s(%s)", name, sectionNum)
	}

	license := ""
	for _, key := range []string{"COPYRIGHT", "COLOPHON"} {
		for _, sec := range sections {
			if sec.Name == key && sec.Body != "" {
				license = sec.Body
				if len(license) > 2000 {
					license = license[:2000]
				}
				break
			}
		}
		if license != "" {
			break
		}
	}

	return ChunkRecord{
		DocumentName:    name,
		DocumentSection: sectionNum,
		DocumentTitle:   title,
		VersionTag:      p.versionTag,
		SourcePath:      path,
		License:         license,
		Aliases:         aliases,
	}
}
