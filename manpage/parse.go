package manpage

import (
	"regexp"
	"sort"
	"strings"
)

// Section is an ordered (heading, body) pair parsed from rendered text.
type Section struct {
	Name string
	Body string
}

var (
	mdHeadingRe    = regexp.MustCompile(`^\s{0,3}#{1,6}\s+([^\n#].*?)\s*$`)
	capsHeadingRe  = regexp.MustCompile(`^[A-Z][A-Z0-9 /_-]{2,}$`)
	nameSplitRe    = regexp.MustCompile(`\s+[-—–]\s+`)
	aliasSplitRe   = regexp.MustCompile(`,\s*`)
	seeAlsoRefRe   = regexp.MustCompile(`\b([a-zA-Z0-9_+.-]+)\((\d[a-z]?)\)`)
	constantRe     = regexp.MustCompile(`\b[A-Z][A-Z0-9_]{2,}\b`)
	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
	slugDropRe     = regexp.MustCompile(`[^a-z0-9-_]`)
	slugDashRe     = regexp.MustCompile(`-{2,}`)
)

// ParseSections splits rendered text into ordered sections using a small
// tagged-state parser: the state is the current section name and transitions
// happen on lines matching the heading grammar. Markdown headings (mandoc,
// pandoc output) and bare uppercase lines (groff output) both count.
func ParseSections(text string) []Section {
	var (
		sections []Section
		current  string
		buf      []string
	)

	flush := func() {
		if current == "" {
			return
		}
		sections = append(sections, Section{Name: current, Body: strings.TrimSpace(strings.Join(buf, "\n"))})
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if m := mdHeadingRe.FindStringSubmatch(line); m != nil {
			flush()
			current = strings.ToUpper(strings.TrimSpace(m[1]))
			continue
		}
		if capsHeadingRe.MatchString(strings.TrimRight(line, " \t")) && !strings.HasPrefix(line, " ") {
			flush()
			current = strings.TrimSpace(line)
			continue
		}
		buf = append(buf, line)
	}
	flush()

	out := sections[:0]
	for _, s := range sections {
		if s.Body != "" {
			out = append(out, s)
		}
	}
	return out
}

// NormalizeWhitespace collapses runs of spaces on prose lines while leaving
// fenced and indented code blocks untouched.
func NormalizeWhitespace(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inFence = !inFence
			lines[i] = strings.TrimRight(line, " \t")
			continue
		}
		if inFence || strings.HasPrefix(line, "    ") {
			lines[i] = strings.TrimRight(line, " \t")
			continue
		}
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	out := strings.Join(lines, "\n")
	return strings.TrimSpace(multiNewlineRe.ReplaceAllString(out, "\n\n"))
}

// ParseNameSection extracts the canonical name, title, and aliases from a
// NAME section's first line, e.g. "grep, egrep, fgrep - print lines ...".
func ParseNameSection(body string) (name, title string, aliases []string) {
	var firstLine string
	for _, ln := range strings.Split(body, "\n") {
		if s := strings.TrimSpace(ln); s != "" {
			firstLine = s
			break
		}
	}
	if firstLine == "" {
		return "", "", nil
	}

	parts := nameSplitRe.Split(firstLine, 2)
	left := strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		title = strings.TrimSpace(parts[1])
	}

	names := aliasSplitRe.Split(left, -1)
	cleaned := names[:0]
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	if len(cleaned) == 0 {
		return "", title, nil
	}
	return cleaned[0], title, cleaned[1:]
}

// ExtractSeeAlsoRefs collects cross-references like "ls(1)" in sorted order.
func ExtractSeeAlsoRefs(text string) []string {
	seen := map[string]bool{}
	var refs []string
	for _, m := range seeAlsoRefRe.FindAllStringSubmatch(text, -1) {
		ref := m[1] + "(" + m[2] + ")"
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	return refs
}

// ExtractConstants collects UPPER_CASE identifiers (errno names, flags).
func ExtractConstants(text string) []string {
	stop := map[string]bool{"THE": true, "AND": true, "FOR": true}
	seen := map[string]bool{}
	var constants []string
	for _, tok := range constantRe.FindAllString(text, -1) {
		if stop[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		constants = append(constants, tok)
	}
	sort.Strings(constants)
	return constants
}

// Slugify lowercases a heading into an anchor-safe token.
func Slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.ReplaceAll(s, "—", "-")
	s = strings.ReplaceAll(s, "–", "-")
	s = strings.Join(strings.Fields(s), "-")
	s = slugDropRe.ReplaceAllString(s, "")
	s = slugDashRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-_")
	if len(s) > 64 {
		s = strings.Trim(s[:64], "-_")
	}
	if s == "" {
		return "section"
	}
	return s
}
