package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecallAtK(t *testing.T) {
	retrieved := []string{"ls", "dir", "vdir"}

	assert.Equal(t, 1.0, RecallAtK([]string{"ls"}, retrieved, 3))
	assert.Equal(t, 0.5, RecallAtK([]string{"ls", "find"}, retrieved, 3))
	assert.Equal(t, 0.0, RecallAtK([]string{"grep"}, retrieved, 3))
	assert.Equal(t, 0.0, RecallAtK(nil, retrieved, 3))
	assert.Equal(t, 0.0, RecallAtK([]string{"vdir"}, retrieved, 2), "k cuts off the tail")
}

func TestRecallAtKMatchesSectionSuffix(t *testing.T) {
	assert.Equal(t, 1.0, RecallAtK([]string{"ls"}, []string{"ls(1)"}, 1))
	assert.Equal(t, 1.0, RecallAtK([]string{"ls(1)"}, []string{"ls"}, 1))
}

func TestReciprocalRank(t *testing.T) {
	retrieved := []string{"dir", "ls", "vdir"}

	assert.Equal(t, 0.5, ReciprocalRank([]string{"ls"}, retrieved))
	assert.Equal(t, 1.0, ReciprocalRank([]string{"dir"}, retrieved))
	assert.Equal(t, 0.0, ReciprocalRank([]string{"grep"}, retrieved))
	assert.Equal(t, 1.0, ReciprocalRank([]string{"grep", "dir"}, retrieved))
}

func TestDefaultScorer(t *testing.T) {
	hit, score := DefaultScorer([]string{"ls", "grep"}, []string{"ls", "dir"})
	assert.True(t, hit)
	assert.Equal(t, 0.5, score)

	hit, score = DefaultScorer([]string{"grep"}, []string{"ls", "dir"})
	assert.False(t, hit)
	assert.Equal(t, 0.0, score)
}
