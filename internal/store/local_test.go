package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclens/pagerag/internal/chunk"
)

const testDims = 4

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(LocalStoreConfig{Dimensions: testDims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(fileID string, index int, content string, vec []float32) ChunkRecord {
	return ChunkRecord{
		Chunk: chunk.Chunk{
			ID:      fmt.Sprintf("%s-%d", fileID, index),
			FileID:  fileID,
			Index:   index,
			Content: content,
		},
		Vector: vec,
	}
}

func TestInsertChunks_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []ChunkRecord{
		record("doc1", 0, "The capital of France is Paris.", []float32{1, 0, 0, 0}),
		record("doc1", 1, "Berlin is the capital of Germany.", []float32{0, 1, 0, 0}),
	}
	require.NoError(t, s.InsertChunks(ctx, "doc1", records))

	count, err := s.CountChunks(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	chunks, err := s.GetChunks(ctx, []string{"doc1-1", "doc1-0"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	// Order follows the requested IDs.
	assert.Equal(t, "doc1-1", chunks[0].ID)
	assert.Equal(t, "doc1-0", chunks[1].ID)
}

func TestInsertChunks_ReindexReplacesPreviousSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []ChunkRecord{
		record("doc1", 0, "Old content about volcanoes.", []float32{1, 0, 0, 0}),
		record("doc1", 1, "More old content about geology.", []float32{0, 1, 0, 0}),
		record("doc1", 2, "Even more old content here.", []float32{0, 0, 1, 0}),
	}
	require.NoError(t, s.InsertChunks(ctx, "doc1", first))

	second := []ChunkRecord{
		record("doc1", 0, "New content about astronomy.", []float32{0, 0, 0, 1}),
	}
	require.NoError(t, s.InsertChunks(ctx, "doc1", second))

	count, err := s.CountChunks(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "previous chunk set must be gone")

	// The replaced chunks no longer surface in lexical search.
	hits, err := s.LexicalSearch(ctx, "volcanoes", "", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.LexicalSearch(ctx, "astronomy", "", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc1-0", hits[0].ChunkID)

	// Nor in vector search.
	vhits, err := s.VectorSearch(ctx, []float32{0, 0, 1, 0}, "", 10, 0)
	require.NoError(t, err)
	for _, h := range vhits {
		assert.Equal(t, "doc1-0", h.ChunkID)
	}
}

func TestVectorSearch_NearestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []ChunkRecord{
		record("doc1", 0, "a", []float32{1, 0, 0, 0}),
		record("doc1", 1, "b", []float32{0, 1, 0, 0}),
		record("doc1", 2, "c", []float32{0.9, 0.1, 0, 0}),
	}
	require.NoError(t, s.InsertChunks(ctx, "doc1", records))

	hits, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, "", 2, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc1-0", hits[0].ChunkID)
	assert.Equal(t, "doc1-2", hits[1].ChunkID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestVectorSearch_DimensionMismatch(t *testing.T) {
	s := newTestStore(t)

	_, err := s.VectorSearch(context.Background(), []float32{1, 0}, "", 5, 0)
	require.Error(t, err)
}

func TestVectorSearch_EmptyIndex(t *testing.T) {
	s := newTestStore(t)

	hits, err := s.VectorSearch(context.Background(), []float32{1, 0, 0, 0}, "", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLexicalSearch_EmptyQuery(t *testing.T) {
	s := newTestStore(t)

	hits, err := s.LexicalSearch(context.Background(), "   ", "", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestLexicalSearch_MatchedTerms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []ChunkRecord{
		record("doc1", 0, "The Eiffel Tower is in Paris.", []float32{1, 0, 0, 0}),
	}
	require.NoError(t, s.InsertChunks(ctx, "doc1", records))

	hits, err := s.LexicalSearch(ctx, "paris tower", "doc1", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.NotEmpty(t, hits[0].MatchedTerms)
}

func TestSearch_ScopedToFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, "doc1", []ChunkRecord{
		record("doc1", 0, "Shared topic gravity waves.", []float32{1, 0, 0, 0}),
	}))
	require.NoError(t, s.InsertChunks(ctx, "doc2", []ChunkRecord{
		record("doc2", 0, "Shared topic gravity waves again.", []float32{1, 0.1, 0, 0}),
	}))

	vhits, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, "doc2", 10, 0)
	require.NoError(t, err)
	require.Len(t, vhits, 1)
	assert.Equal(t, "doc2-0", vhits[0].ChunkID)

	lhits, err := s.LexicalSearch(ctx, "gravity", "doc1", 10)
	require.NoError(t, err)
	require.Len(t, lhits, 1)
	assert.Equal(t, "doc1-0", lhits[0].ChunkID)
}

func TestDeleteChunks_RemovesFromAllBackends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertChunks(ctx, "doc1", []ChunkRecord{
		record("doc1", 0, "Content to delete.", []float32{1, 0, 0, 0}),
	}))
	require.NoError(t, s.InsertChunks(ctx, "doc2", []ChunkRecord{
		record("doc2", 0, "Content to keep.", []float32{0, 1, 0, 0}),
	}))

	require.NoError(t, s.DeleteChunks(ctx, "doc1"))

	count, err := s.CountChunks(ctx, "doc1")
	require.NoError(t, err)
	assert.Zero(t, count)

	hits, err := s.LexicalSearch(ctx, "delete", "", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	vhits, err := s.VectorSearch(ctx, []float32{1, 0, 0, 0}, "", 5, 0)
	require.NoError(t, err)
	for _, h := range vhits {
		assert.NotEqual(t, "doc1-0", h.ChunkID)
	}

	count, err = s.CountChunks(ctx, "doc2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLocalStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewLocalStore(LocalStoreConfig{Dir: dir, Dimensions: testDims})
	require.NoError(t, err)
	require.NoError(t, s.InsertChunks(ctx, "doc1", []ChunkRecord{
		record("doc1", 0, "Persistent content.", []float32{1, 0, 0, 0}),
	}))
	require.NoError(t, s.Close())

	reopened, err := NewLocalStore(LocalStoreConfig{Dir: dir, Dimensions: testDims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	count, err := reopened.CountChunks(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	vhits, err := reopened.VectorSearch(ctx, []float32{1, 0, 0, 0}, "", 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, vhits)
	assert.Equal(t, "doc1-0", vhits[0].ChunkID)

	lhits, err := reopened.LexicalSearch(ctx, "persistent", "", 5)
	require.NoError(t, err)
	require.Len(t, lhits, 1)
}
