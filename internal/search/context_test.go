package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWithTokenLimit_NeverExceedsBudget(t *testing.T) {
	b := NewContextBuilder(nil)

	chunks := []ScoredChunk{
		scored("a", 0, strings.Repeat("alpha beta gamma delta. ", 40)),
		scored("b", 1, strings.Repeat("epsilon zeta eta theta. ", 40)),
		scored("c", 2, strings.Repeat("iota kappa lambda mu. ", 40)),
	}

	out := b.BuildWithTokenLimit(chunks, 500)

	assert.LessOrEqual(t, b.CountTokens(out), 500)
	assert.NotEmpty(t, out)
}

func TestBuildWithTokenLimit_DropsWholeChunks(t *testing.T) {
	b := NewContextBuilder(nil)

	small := "Short chunk."
	huge := strings.Repeat("very long chunk content. ", 200)
	chunks := []ScoredChunk{
		scored("small", 0, small),
		scored("huge", 1, huge),
		scored("small2", 2, "Another short chunk."),
	}

	budget := b.CountTokens(small) + b.CountTokens("Another short chunk.") + b.CountTokens("\n\n") + 2
	out := b.BuildWithTokenLimit(chunks, budget)

	assert.Contains(t, out, small)
	assert.NotContains(t, out, "very long chunk content")
	// Content is never truncated mid-chunk; the oversized one is absent
	// entirely and later chunks may still fit.
	assert.Contains(t, out, "Another short chunk.")
}

func TestBuildWithTokenLimit_EmptyInputs(t *testing.T) {
	b := NewContextBuilder(nil)

	assert.Empty(t, b.BuildWithTokenLimit(nil, 100))
	assert.Empty(t, b.BuildWithTokenLimit([]ScoredChunk{scored("a", 0, "x")}, 0))
}

func TestBuildWithTokenLimit_PreservesRankingOrder(t *testing.T) {
	b := NewContextBuilder(nil)

	chunks := []ScoredChunk{
		scored("first", 0, "First ranked chunk."),
		scored("second", 1, "Second ranked chunk."),
	}
	out := b.BuildWithTokenLimit(chunks, 10000)

	require.NotEmpty(t, out)
	assert.Less(t, strings.Index(out, "First"), strings.Index(out, "Second"))
}

func TestCountTokens_Positive(t *testing.T) {
	b := NewContextBuilder(nil)

	assert.Greater(t, b.CountTokens("hello world"), 0)
	assert.Zero(t, b.CountTokens(""))
}
