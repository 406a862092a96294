package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/pagerag/internal/chunk"
	"github.com/doclens/pagerag/internal/llm"
)

func scored(id string, index int, content string) ScoredChunk {
	return ScoredChunk{Chunk: chunk.Chunk{ID: id, FileID: "f", Index: index, Content: content}}
}

func TestRerank_ReordersByScore(t *testing.T) {
	stub := &stubCompletion{scores: []llm.RelevanceScore{
		{Index: 0, Score: 2},
		{Index: 1, Score: 9},
	}}
	r := NewReranker(stub, nil)

	chunks := []ScoredChunk{scored("A", 0, "first"), scored("B", 1, "second")}
	result := r.Rerank(context.Background(), chunks, "query", 1)

	require.Len(t, result, 2)
	assert.Equal(t, "B", result[0].ID)
	assert.Equal(t, "A", result[1].ID)
	assert.Equal(t, 9.0, result[0].RerankScore)
	assert.Equal(t, 2.0, result[1].RerankScore)
}

func TestRerank_SkippedWhenNotWorthwhile(t *testing.T) {
	stub := &stubCompletion{}
	r := NewReranker(stub, nil)

	chunks := []ScoredChunk{scored("A", 0, "only")}
	result := r.Rerank(context.Background(), chunks, "query", 5)

	assert.Equal(t, chunks, result)
	assert.Zero(t, stub.scoreCalls, "no external call when candidates fit the final count")
}

func TestRerank_FailureKeepsOriginalOrder(t *testing.T) {
	stub := &stubCompletion{scoreErr: errors.New("service down")}
	r := NewReranker(stub, nil)

	chunks := []ScoredChunk{scored("A", 0, "a"), scored("B", 1, "b")}
	result := r.Rerank(context.Background(), chunks, "query", 1)

	require.Len(t, result, 2)
	assert.Equal(t, "A", result[0].ID)
	assert.Equal(t, "B", result[1].ID)
}

func TestRerank_IgnoresOutOfRangeIndices(t *testing.T) {
	stub := &stubCompletion{scores: []llm.RelevanceScore{
		{Index: -1, Score: 10},
		{Index: 5, Score: 10},
		{Index: 1, Score: 8},
	}}
	r := NewReranker(stub, nil)

	chunks := []ScoredChunk{scored("A", 0, "a"), scored("B", 1, "b")}
	result := r.Rerank(context.Background(), chunks, "query", 1)

	require.Len(t, result, 2)
	assert.Equal(t, "B", result[0].ID)
	assert.Equal(t, 8.0, result[0].RerankScore)
}

func TestRerank_TruncatesPreviews(t *testing.T) {
	long := strings.Repeat("x", 1000)
	assert.Len(t, preview(long), previewLength)
	assert.Equal(t, "short", preview("short"))
}

func TestRerank_PreviewKeepsValidUTF8(t *testing.T) {
	// The leading ASCII byte misaligns every following rune with the byte
	// limit, so a naive byte cut would split one.
	long := "a" + strings.Repeat("日本語のテキスト。", 100)

	p := preview(long)

	assert.LessOrEqual(t, len(p), previewLength)
	assert.True(t, utf8.ValidString(p))
}
