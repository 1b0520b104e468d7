package manpage

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseSectionsMarkdownHeadings(t *testing.T) {
	text := "# NAME\n\nls - list directory contents\n\n# SYNOPSIS\n\nls [OPTION]... [FILE]...\n\n# DESCRIPTION\n\nList information about the FILEs.\n"
	sections := ParseSections(text)
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(sections))
	}
	want := []string{"NAME", "SYNOPSIS", "DESCRIPTION"}
	for i, s := range sections {
		if s.Name != want[i] {
			t.Fatalf("section %d: expected %q, got %q", i, want[i], s.Name)
		}
		if s.Body == "" {
			t.Fatalf("section %q has empty body", s.Name)
		}
	}
}

func TestParseSectionsUppercaseHeadings(t *testing.T) {
	text := "NAME\n       grep - print lines that match patterns\nSEE ALSO\n       sed(1), awk(1)\n"
	sections := ParseSections(text)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].Name != "NAME" || sections[1].Name != "SEE ALSO" {
		t.Fatalf("unexpected section names: %q, %q", sections[0].Name, sections[1].Name)
	}
}

func TestParseSectionsDropsPreamble(t *testing.T) {
	text := "rendered by mandoc\n\n# NAME\n\nls - list directory contents\n"
	sections := ParseSections(text)
	if len(sections) != 1 {
		t.Fatalf("expected preamble before the first heading to be dropped, got %d sections", len(sections))
	}
}

func TestParseSectionsIndentedCapsNotHeading(t *testing.T) {
	text := "# DESCRIPTION\n\nprose\n    INDENTED CODE\nmore prose\n"
	sections := ParseSections(text)
	if len(sections) != 1 {
		t.Fatalf("indented uppercase line must not start a section, got %d sections", len(sections))
	}
}

func TestParseNameSection(t *testing.T) {
	name, title, aliases := ParseNameSection("grep, egrep, fgrep - print lines that match patterns")
	if name != "grep" {
		t.Fatalf("expected name grep, got %q", name)
	}
	if title != "print lines that match patterns" {
		t.Fatalf("unexpected title %q", title)
	}
	if !reflect.DeepEqual(aliases, []string{"egrep", "fgrep"}) {
		t.Fatalf("unexpected aliases %v", aliases)
	}
}

func TestParseNameSectionEmDash(t *testing.T) {
	name, title, _ := ParseNameSection("ls — list directory contents")
	if name != "ls" || title != "list directory contents" {
		t.Fatalf("em-dash NAME line not parsed: name=%q title=%q", name, title)
	}
}

func TestExtractSeeAlsoRefs(t *testing.T) {
	refs := ExtractSeeAlsoRefs("See sed(1), awk(1) and signal(7). Also sed(1) again.")
	if !reflect.DeepEqual(refs, []string{"awk(1)", "sed(1)", "signal(7)"}) {
		t.Fatalf("unexpected refs %v", refs)
	}
}

func TestExtractConstants(t *testing.T) {
	constants := ExtractConstants("Returns EINVAL or ENOMEM. THE flag O_APPEND is set.")
	if !reflect.DeepEqual(constants, []string{"EINVAL", "ENOMEM", "O_APPEND"}) {
		t.Fatalf("unexpected constants %v", constants)
	}
}

func TestNormalizeWhitespacePreservesCode(t *testing.T) {
	text := "prose   with    runs\n\n    indented   code\n\n```\nfenced   code\n```\n"
	out := NormalizeWhitespace(text)
	if !strings.Contains(out, "prose with runs") {
		t.Fatalf("prose spacing not collapsed: %q", out)
	}
	if !strings.Contains(out, "    indented   code") {
		t.Fatalf("indented code was rewritten: %q", out)
	}
	if !strings.Contains(out, "fenced   code") {
		t.Fatalf("fenced code was rewritten: %q", out)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"NAME":             "name",
		"SEE ALSO":         "see-also",
		"C LIBRARY/KERNEL": "c-librarykernel",
		"   ":              "section",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
