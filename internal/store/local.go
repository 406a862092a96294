package store

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/doclens/pagerag/internal/chunk"
	pkgerrors "github.com/doclens/pagerag/internal/errors"
)

// LocalStore composes the three backends into one ChunkStore. SQLite metadata
// is written first inside a transaction, so a mid-insert failure never
// exposes a partial chunk set for the file.
type LocalStore struct {
	meta    *MetadataStore
	lexical *LexicalIndex
	vector  *VectorIndex
	dir     string
}

// Verify interface implementation at compile time.
var _ ChunkStore = (*LocalStore)(nil)

// LocalStoreConfig configures the composed store.
type LocalStoreConfig struct {
	// Dir is the storage directory. Empty means fully in-memory.
	Dir        string
	Dimensions int
}

// NewLocalStore opens all three backends under cfg.Dir and restores the
// vector graph from its last snapshot.
func NewLocalStore(cfg LocalStoreConfig) (*LocalStore, error) {
	var metaPath, lexicalPath string
	if cfg.Dir != "" {
		metaPath = filepath.Join(cfg.Dir, "chunks.db")
		lexicalPath = filepath.Join(cfg.Dir, "lexical.bleve")
	}

	meta, err := NewMetadataStore(metaPath)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeCorruptIndex, err)
	}

	lexical, err := NewLexicalIndex(lexicalPath)
	if err != nil {
		_ = meta.Close()
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeCorruptIndex, err)
	}

	vector := NewVectorIndex(VectorIndexConfig{Dimensions: cfg.Dimensions})
	if cfg.Dir != "" {
		if err := vector.Load(vectorPath(cfg.Dir)); err != nil {
			// A stale or corrupt snapshot costs a reindex, not a startup.
			slog.Warn("vector index snapshot unusable, starting empty",
				slog.String("error", err.Error()))
		}
	}

	return &LocalStore{meta: meta, lexical: lexical, vector: vector, dir: cfg.Dir}, nil
}

func vectorPath(dir string) string {
	return filepath.Join(dir, "vectors.hnsw")
}

// InsertChunks replaces all chunks of a file with records. The metadata swap
// is transactional; the derived indexes are updated after it commits.
func (s *LocalStore) InsertChunks(ctx context.Context, fileID string, records []ChunkRecord) error {
	oldIDs, err := s.meta.FileChunkIDs(ctx, fileID)
	if err != nil {
		return pkgerrors.PersistFailed(err).WithDetail("file_id", fileID)
	}

	chunks := make([]chunk.Chunk, len(records))
	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, rec := range records {
		chunks[i] = rec.Chunk
		ids[i] = rec.Chunk.ID
		vectors[i] = rec.Vector
	}

	if err := s.meta.ReplaceFile(ctx, fileID, chunks); err != nil {
		return pkgerrors.PersistFailed(err).WithDetail("file_id", fileID)
	}

	if err := s.lexical.Delete(ctx, oldIDs); err != nil {
		return pkgerrors.PersistFailed(err).WithDetail("file_id", fileID)
	}
	if err := s.lexical.Index(ctx, records); err != nil {
		return pkgerrors.PersistFailed(err).WithDetail("file_id", fileID)
	}

	if err := s.vector.Delete(ctx, oldIDs); err != nil {
		return pkgerrors.PersistFailed(err).WithDetail("file_id", fileID)
	}
	if err := s.vector.Add(ctx, fileID, ids, vectors); err != nil {
		return pkgerrors.PersistFailed(err).WithDetail("file_id", fileID)
	}

	if s.dir != "" {
		if err := s.vector.Save(vectorPath(s.dir)); err != nil {
			slog.Warn("vector index snapshot failed",
				slog.String("file_id", fileID),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// VectorSearch returns up to topK chunks nearest to the query vector.
func (s *LocalStore) VectorSearch(ctx context.Context, vector []float32, fileID string, topK int, threshold float64) ([]VectorHit, error) {
	hits, err := s.vector.Search(ctx, vector, fileID, topK, threshold)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeSearchFailed, err)
	}
	return hits, nil
}

// LexicalSearch returns up to topK chunks matching query by BM25.
func (s *LocalStore) LexicalSearch(ctx context.Context, query string, fileID string, topK int) ([]LexicalHit, error) {
	hits, err := s.lexical.Search(ctx, query, fileID, topK)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeSearchFailed, err)
	}
	return hits, nil
}

// GetChunks loads chunk metadata by ID.
func (s *LocalStore) GetChunks(ctx context.Context, ids []string) ([]chunk.Chunk, error) {
	return s.meta.GetChunks(ctx, ids)
}

// DeleteChunks removes all chunks of a file from every backend.
func (s *LocalStore) DeleteChunks(ctx context.Context, fileID string) error {
	ids, err := s.meta.FileChunkIDs(ctx, fileID)
	if err != nil {
		return pkgerrors.PersistFailed(err).WithDetail("file_id", fileID)
	}
	if err := s.meta.DeleteFile(ctx, fileID); err != nil {
		return pkgerrors.PersistFailed(err).WithDetail("file_id", fileID)
	}
	if err := s.lexical.Delete(ctx, ids); err != nil {
		return pkgerrors.PersistFailed(err).WithDetail("file_id", fileID)
	}
	if err := s.vector.Delete(ctx, ids); err != nil {
		return pkgerrors.PersistFailed(err).WithDetail("file_id", fileID)
	}
	return nil
}

// CountChunks returns the number of stored chunks for a file.
func (s *LocalStore) CountChunks(ctx context.Context, fileID string) (int, error) {
	return s.meta.CountChunks(ctx, fileID)
}

// Close flushes the vector snapshot and closes all backends.
func (s *LocalStore) Close() error {
	var firstErr error
	if s.dir != "" {
		if err := s.vector.Save(vectorPath(s.dir)); err != nil {
			firstErr = err
		}
	}
	for _, closer := range []func() error{s.vector.Close, s.lexical.Close, s.meta.Close} {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
