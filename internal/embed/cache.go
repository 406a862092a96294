package embed

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	pkgerrors "github.com/doclens/pagerag/internal/errors"
)

// Cache defaults.
const (
	// DefaultMemoryEntries bounds the LRU memory tier.
	// At 768 dims * 4 bytes * 1000 entries ≈ 3MB memory.
	DefaultMemoryEntries = 1000

	// DefaultDiskMaxEntries bounds the disk tier after cleanup.
	DefaultDiskMaxEntries = 50000

	// DefaultDiskMaxAge evicts disk entries not touched for this long.
	DefaultDiskMaxAge = 30 * 24 * time.Hour
)

// CacheStats reports cache behavior for observability. The orchestrator uses
// the hit rate to decide whether indexing can be throttled down.
type CacheStats struct {
	Size        int     `json:"size"`         // entries in the memory tier
	Capacity    int     `json:"capacity"`     // memory tier bound
	DiskEntries int     `json:"disk_entries"` // rows in the disk tier
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	DiskHits    uint64  `json:"disk_hits"`
	HitRate     float64 `json:"hit_rate"`
}

// TieredCacheConfig configures the two-tier embedding cache.
type TieredCacheConfig struct {
	// Dir is the directory holding the disk tier database and lock file.
	Dir string
	// MemoryEntries bounds the LRU memory tier.
	MemoryEntries int
	// DiskMaxEntries is the number of entries kept by CleanupDisk.
	DiskMaxEntries int
	// DiskMaxAge is the retention age applied by CleanupDisk.
	DiskMaxAge time.Duration
}

// TieredCache deduplicates embedding calls behind a bounded memory LRU tier
// and an unbounded-but-prunable SQLite disk tier. Keys are content hashes, so
// identical text across documents reuses one vector regardless of file.
// Safe for concurrent use by the indexing and query paths.
type TieredCache struct {
	inner Embedder
	mem   *lru.Cache[string, []float32]
	db    *sql.DB
	lock  *flock.Flock
	cfg   TieredCacheConfig

	hits     atomic.Uint64
	misses   atomic.Uint64
	diskHits atomic.Uint64
}

// NewTieredCache creates the cache around inner. The disk tier lives at
// <dir>/embeddings.db; the directory is created if needed.
func NewTieredCache(inner Embedder, cfg TieredCacheConfig) (*TieredCache, error) {
	if cfg.MemoryEntries <= 0 {
		cfg.MemoryEntries = DefaultMemoryEntries
	}
	if cfg.DiskMaxEntries <= 0 {
		cfg.DiskMaxEntries = DefaultDiskMaxEntries
	}
	if cfg.DiskMaxAge <= 0 {
		cfg.DiskMaxAge = DefaultDiskMaxAge
	}

	mem, _ := lru.New[string, []float32](cfg.MemoryEntries)

	var dsn string
	if cfg.Dir == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.ErrCodeCacheIO, err)
		}
		dsn = filepath.Join(cfg.Dir, "embeddings.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeCacheIO, err)
	}
	// Single writer prevents lock contention; WAL keeps reads concurrent
	// with cleanup.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, pkgerrors.Wrap(pkgerrors.ErrCodeCacheIO, err)
		}
	}

	const schema = `
CREATE TABLE IF NOT EXISTS embedding_cache (
	key         TEXT PRIMARY KEY,
	vector      BLOB NOT NULL,
	created_at  INTEGER NOT NULL,
	accessed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_accessed ON embedding_cache(accessed_at);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeCacheIO, err)
	}

	c := &TieredCache{
		inner: inner,
		mem:   mem,
		db:    db,
		cfg:   cfg,
	}
	if cfg.Dir != "" {
		c.lock = flock.New(filepath.Join(cfg.Dir, ".cache.lock"))
	}
	return c, nil
}

// cacheKey hashes the normalized text together with the model name, so a
// model switch never serves stale vectors. Normalization (whitespace
// collapse, case fold) applies to the key only, never to the text embedded.
func (c *TieredCache) cacheKey(text string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(text), " "))
	sum := sha256.Sum256([]byte(normalized + "\x00" + c.inner.ModelName()))
	return hex.EncodeToString(sum[:])
}

// GetOrCreate returns the cached embedding for text, computing and caching it
// on a full miss. Memory tier first, then disk (promoting to memory), then the
// external embedder with write-through to both tiers.
func (c *TieredCache) GetOrCreate(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.mem.Get(key); ok {
		c.hits.Add(1)
		return vec, nil
	}

	if vec, ok := c.diskGet(ctx, key); ok {
		c.hits.Add(1)
		c.diskHits.Add(1)
		c.mem.Add(key, vec)
		return vec, nil
	}

	c.misses.Add(1)
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeEmbeddingFailed, err)
	}

	c.mem.Add(key, vec)
	c.diskPut(ctx, key, vec)
	return vec, nil
}

// Clear drops both tiers entirely.
func (c *TieredCache) Clear(ctx context.Context) error {
	c.mem.Purge()
	if _, err := c.db.ExecContext(ctx, "DELETE FROM embedding_cache"); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeCacheIO, err)
	}
	return nil
}

// CleanupDisk prunes disk entries beyond the retention policy (age, then
// count). A cross-process file lock keeps two cleanups from racing; reads
// continue concurrently under WAL. Skips silently when another process holds
// the lock.
func (c *TieredCache) CleanupDisk(ctx context.Context) error {
	if c.lock != nil {
		acquired, err := c.lock.TryLock()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.ErrCodeCacheIO, err)
		}
		if !acquired {
			slog.Debug("disk cache cleanup skipped, lock held elsewhere")
			return nil
		}
		defer func() { _ = c.lock.Unlock() }()
	}

	cutoff := time.Now().Add(-c.cfg.DiskMaxAge).Unix()
	if _, err := c.db.ExecContext(ctx,
		"DELETE FROM embedding_cache WHERE accessed_at < ?", cutoff); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeCacheIO, err)
	}

	if _, err := c.db.ExecContext(ctx, `
DELETE FROM embedding_cache WHERE key NOT IN (
	SELECT key FROM embedding_cache ORDER BY accessed_at DESC LIMIT ?
)`, c.cfg.DiskMaxEntries); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeCacheIO, err)
	}
	return nil
}

// Stats reports current cache counters.
func (c *TieredCache) Stats() CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if hits+misses > 0 {
		rate = float64(hits) / float64(hits+misses)
	}

	var diskEntries int
	if err := c.db.QueryRow(
		"SELECT COUNT(*) FROM embedding_cache").Scan(&diskEntries); err != nil {
		slog.Debug("disk cache count failed", slog.String("error", err.Error()))
	}

	return CacheStats{
		Size:        c.mem.Len(),
		Capacity:    c.cfg.MemoryEntries,
		DiskEntries: diskEntries,
		Hits:        hits,
		Misses:      misses,
		DiskHits:    c.diskHits.Load(),
		HitRate:     rate,
	}
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (c *TieredCache) Dimensions() int { return c.inner.Dimensions() }

// ModelName returns the model identifier (passthrough to inner).
func (c *TieredCache) ModelName() string { return c.inner.ModelName() }

// Close closes the disk tier and the inner embedder.
func (c *TieredCache) Close() error {
	if err := c.db.Close(); err != nil {
		_ = c.inner.Close()
		return err
	}
	return c.inner.Close()
}

func (c *TieredCache) diskGet(ctx context.Context, key string) ([]float32, bool) {
	var blob []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT vector FROM embedding_cache WHERE key = ?", key).Scan(&blob)
	if err != nil {
		if err != sql.ErrNoRows {
			slog.Warn("disk cache read failed", slog.String("error", err.Error()))
		}
		return nil, false
	}

	vec, err := decodeVector(blob)
	if err != nil {
		slog.Warn("disk cache entry corrupt, dropping",
			slog.String("key", key),
			slog.String("error", err.Error()))
		_, _ = c.db.ExecContext(ctx, "DELETE FROM embedding_cache WHERE key = ?", key)
		return nil, false
	}

	if _, err := c.db.ExecContext(ctx,
		"UPDATE embedding_cache SET accessed_at = ? WHERE key = ?",
		time.Now().Unix(), key); err != nil {
		slog.Debug("disk cache touch failed", slog.String("error", err.Error()))
	}
	return vec, true
}

func (c *TieredCache) diskPut(ctx context.Context, key string, vec []float32) {
	now := time.Now().Unix()
	if _, err := c.db.ExecContext(ctx, `
INSERT INTO embedding_cache (key, vector, created_at, accessed_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET vector = excluded.vector, accessed_at = excluded.accessed_at`,
		key, encodeVector(vec), now, now); err != nil {
		// Write-through failure degrades to memory-only caching.
		slog.Warn("disk cache write failed", slog.String("error", err.Error()))
	}
}

// encodeVector packs float32s little-endian.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
