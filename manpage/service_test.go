package manpage

import "testing"

func TestUniqueAnchorKeepsFirstOccurrence(t *testing.T) {
	seen := map[string]bool{}
	if got := uniqueAnchor(seen, "ls-1-name-01"); got != "ls-1-name-01" {
		t.Fatalf("first occurrence changed: %q", got)
	}
}

func TestUniqueAnchorBumpsOrdinalOnCollision(t *testing.T) {
	seen := map[string]bool{}
	uniqueAnchor(seen, "ls-1-name-01")

	if got := uniqueAnchor(seen, "ls-1-name-01"); got != "ls-1-name-01-2" {
		t.Fatalf("second occurrence: %q", got)
	}
	if got := uniqueAnchor(seen, "ls-1-name-01"); got != "ls-1-name-01-3" {
		t.Fatalf("third occurrence: %q", got)
	}
}
