package store

import (
	"testing"

	"github.com/V4siliy/llm-manpage-rag/manpage"
)

func validChunkRecord() manpage.ChunkRecord {
	return manpage.ChunkRecord{
		DocumentName:    "ls",
		DocumentSection: "1",
		DocumentTitle:   "list directory contents",
		VersionTag:      "6.9",
		SectionName:     "NAME",
		Anchor:          "ls-1-name-01",
		Text:            "ls - list directory contents",
		TokenCount:      8,
	}
}

func TestValidateRecord(t *testing.T) {
	if err := validateRecord(validChunkRecord()); err != nil {
		t.Fatalf("valid record rejected: %v", err)
	}

	cases := map[string]func(*manpage.ChunkRecord){
		"missing name":       func(r *manpage.ChunkRecord) { r.DocumentName = "" },
		"missing section":    func(r *manpage.ChunkRecord) { r.DocumentSection = "" },
		"missing version":    func(r *manpage.ChunkRecord) { r.VersionTag = "" },
		"missing anchor":     func(r *manpage.ChunkRecord) { r.Anchor = "" },
		"blank text":         func(r *manpage.ChunkRecord) { r.Text = "   \n" },
		"zero token count":   func(r *manpage.ChunkRecord) { r.TokenCount = 0 },
		"negative tokens":    func(r *manpage.ChunkRecord) { r.TokenCount = -3 },
	}
	for name, mutate := range cases {
		rec := validChunkRecord()
		mutate(&rec)
		if err := validateRecord(rec); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
