package evaluation

import "strings"

// Scorer turns a query's expectations and the ranked retrieved documents
// into a hit flag and a numeric score. The default scorer is recall-based;
// callers with their own notion of quality supply their own.
type Scorer func(expected, retrieved []string) (hit bool, score float64)

// DefaultScorer reports a hit when any expected document was retrieved and
// scores by recall across the expected set.
func DefaultScorer(expected, retrieved []string) (bool, float64) {
	recall := RecallAtK(expected, retrieved, len(retrieved))
	return recall > 0, recall
}

// RecallAtK is the fraction of expected documents found in the top k
// retrieved documents.
func RecallAtK(expected, retrieved []string, k int) float64 {
	if len(expected) == 0 {
		return 0
	}
	if k > len(retrieved) {
		k = len(retrieved)
	}
	found := 0
	for _, want := range expected {
		for _, got := range retrieved[:k] {
			if documentsMatch(want, got) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(expected))
}

// ReciprocalRank is 1/rank of the first expected document in the retrieved
// order, or 0 when none appears.
func ReciprocalRank(expected, retrieved []string) float64 {
	for i, got := range retrieved {
		for _, want := range expected {
			if documentsMatch(want, got) {
				return 1 / float64(i+1)
			}
		}
	}
	return 0
}

// documentsMatch compares document references loosely: "ls" matches both
// "ls" and "ls(1)".
func documentsMatch(want, got string) bool {
	want = strings.ToLower(strings.TrimSpace(want))
	got = strings.ToLower(strings.TrimSpace(got))
	if want == got {
		return true
	}
	if idx := strings.IndexByte(got, '('); idx > 0 && got[:idx] == want {
		return true
	}
	if idx := strings.IndexByte(want, '('); idx > 0 && want[:idx] == got {
		return true
	}
	return false
}
