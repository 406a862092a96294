// Package store persists document chunks across three backends: a SQLite
// metadata store, a Bleve BM25 index for lexical search, and an HNSW graph
// for vector search.
package store

import (
	"context"
	"fmt"

	"github.com/doclens/pagerag/internal/chunk"
)

// ChunkRecord pairs a chunk with its embedding for persistence.
type ChunkRecord struct {
	Chunk  chunk.Chunk
	Vector []float32
}

// VectorHit is a single nearest-neighbor result.
type VectorHit struct {
	ChunkID string
	// Score is cosine similarity in [-1, 1].
	Score float64
}

// LexicalHit is a single BM25 result.
type LexicalHit struct {
	ChunkID string
	Score   float64
	// MatchedTerms are the analyzed query terms found in the chunk.
	MatchedTerms []string
}

// ChunkStore is the persistence boundary of the pipeline. Implementations
// must make InsertChunks atomic per file: a failed insert leaves the previous
// chunk set for that file intact and visible.
type ChunkStore interface {
	// InsertChunks replaces all chunks of a file with the given records.
	InsertChunks(ctx context.Context, fileID string, records []ChunkRecord) error

	// VectorSearch returns up to topK chunks nearest to the query vector.
	// A non-empty fileID scopes the search to one file; hits scoring below
	// threshold are dropped (0 disables the threshold).
	VectorSearch(ctx context.Context, vector []float32, fileID string, topK int, threshold float64) ([]VectorHit, error)

	// LexicalSearch returns up to topK chunks matching the query by BM25.
	// A non-empty fileID scopes the search to one file.
	LexicalSearch(ctx context.Context, query string, fileID string, topK int) ([]LexicalHit, error)

	// GetChunks loads chunk metadata by ID. Missing IDs are skipped.
	GetChunks(ctx context.Context, ids []string) ([]chunk.Chunk, error)

	// DeleteChunks removes all chunks of a file.
	DeleteChunks(ctx context.Context, fileID string) error

	// CountChunks returns the number of stored chunks for a file.
	CountChunks(ctx context.Context, fileID string) (int, error)

	// Close flushes and releases all backends.
	Close() error
}

// ErrDimensionMismatch reports a vector whose dimension does not match the
// store configuration.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
