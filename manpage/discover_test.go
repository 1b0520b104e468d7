package manpage

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(".TH TEST 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDetectSection(t *testing.T) {
	cases := map[string]string{
		"man1/ls.1":       "1",
		"man3/printf.3":   "3",
		"man2/open.2":     "2",
		"man7/signal.7":   "7",
		"man3/curses.3x":  "3x",
		"man1/README":     "1",
		"docs/notes.txt":  "",
		"random/file":     "",
		"man1/foo.1.orig": "1",
	}
	for path, want := range cases {
		if got := DetectSection(path); got != want {
			t.Fatalf("DetectSection(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestDiscoverFiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "man1", "ls.1"))
	writeFile(t, filepath.Join(root, "man1", "cat.1"))
	writeFile(t, filepath.Join(root, "man2", "open.2"))
	writeFile(t, filepath.Join(root, "man1", ".hidden.1"))
	writeFile(t, filepath.Join(root, "other", "notes.1"))
	writeFile(t, filepath.Join(root, "man1", "README"))

	files, err := Discover(root, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 files, got %d: %v", len(files), files)
	}
	if filepath.Base(files[0]) != "cat.1" || filepath.Base(files[1]) != "ls.1" {
		t.Fatalf("section-1 files not sorted by name: %v", files)
	}
	if filepath.Base(files[2]) != "open.2" {
		t.Fatalf("expected open.2 last, got %v", files)
	}
}

func TestDiscoverLimit(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "man1", "a.1"))
	writeFile(t, filepath.Join(root, "man1", "b.1"))
	writeFile(t, filepath.Join(root, "man1", "c.1"))

	files, err := Discover(root, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected limit to cap at 2, got %d", len(files))
	}
}
