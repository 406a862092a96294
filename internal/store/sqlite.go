package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/doclens/pagerag/internal/chunk"
)

// MetadataStore holds chunk metadata in SQLite. It is the source of truth:
// the lexical and vector indexes are derived from it and can be rebuilt.
type MetadataStore struct {
	db *sql.DB
}

// NewMetadataStore opens (or creates) the metadata database at path.
// An empty path opens an in-memory database for testing.
func NewMetadataStore(path string) (*MetadataStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create metadata directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}
	// modernc.org/sqlite serializes access; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	file_id     TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content     TEXT NOT NULL,
	page_number INTEGER NOT NULL DEFAULT 0,
	is_caption  INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &MetadataStore{db: db}, nil
}

// ReplaceFile atomically swaps all chunk rows of a file for the given set.
func (m *MetadataStore) ReplaceFile(ctx context.Context, fileID string, chunks []chunk.Chunk) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}

	now := time.Now().Unix()
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, file_id, chunk_index, content, page_number, is_caption, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		isCaption := 0
		if ch.IsCaption {
			isCaption = 1
		}
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.FileID, ch.Index, ch.Content,
			ch.PageNumber, isCaption, now); err != nil {
			return fmt.Errorf("insert chunk %s: %w", ch.ID, err)
		}
	}

	return tx.Commit()
}

// GetChunks loads chunks by ID, in the order requested. Missing IDs are
// silently skipped.
func (m *MetadataStore) GetChunks(ctx context.Context, ids []string) ([]chunk.Chunk, error) {
	if len(ids) == 0 {
		return []chunk.Chunk{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := m.db.QueryContext(ctx,
		"SELECT id, file_id, chunk_index, content, page_number, is_caption FROM chunks WHERE id IN ("+placeholders+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]chunk.Chunk, len(ids))
	for rows.Next() {
		var ch chunk.Chunk
		var isCaption int
		if err := rows.Scan(&ch.ID, &ch.FileID, &ch.Index, &ch.Content, &ch.PageNumber, &isCaption); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		ch.IsCaption = isCaption != 0
		byID[ch.ID] = ch
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	result := make([]chunk.Chunk, 0, len(byID))
	for _, id := range ids {
		if ch, ok := byID[id]; ok {
			result = append(result, ch)
		}
	}
	return result, nil
}

// FileChunkIDs returns the IDs of all chunks stored for a file.
func (m *MetadataStore) FileChunkIDs(ctx context.Context, fileID string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		"SELECT id FROM chunks WHERE file_id = ? ORDER BY chunk_index", fileID)
	if err != nil {
		return nil, fmt.Errorf("query file chunks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteFile removes all chunk rows of a file.
func (m *MetadataStore) DeleteFile(ctx context.Context, fileID string) error {
	if _, err := m.db.ExecContext(ctx, "DELETE FROM chunks WHERE file_id = ?", fileID); err != nil {
		return fmt.Errorf("delete file chunks: %w", err)
	}
	return nil
}

// CountChunks returns the number of stored chunks for a file.
func (m *MetadataStore) CountChunks(ctx context.Context, fileID string) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE file_id = ?", fileID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count file chunks: %w", err)
	}
	return count, nil
}

// Close closes the database.
func (m *MetadataStore) Close() error {
	return m.db.Close()
}
