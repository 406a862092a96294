package embed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/doclens/pagerag/internal/errors"
)

// countingEmbedder records how many external calls were made.
type countingEmbedder struct {
	calls atomic.Int64
	fail  bool
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail {
		return nil, errors.New("service unavailable")
	}
	// Deterministic fake vector derived from text length.
	return []float32{float32(len(text)), 1, 2}, nil
}

func (e *countingEmbedder) Dimensions() int   { return 3 }
func (e *countingEmbedder) ModelName() string { return "test-model" }
func (e *countingEmbedder) Close() error      { return nil }

func newTestCache(t *testing.T, inner Embedder) *TieredCache {
	t.Helper()
	c, err := NewTieredCache(inner, TieredCacheConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetOrCreate_SecondCallHitsCache(t *testing.T) {
	inner := &countingEmbedder{}
	c := newTestCache(t, inner)
	ctx := context.Background()

	first, err := c.GetOrCreate(ctx, "the capital of France")
	require.NoError(t, err)

	second, err := c.GetOrCreate(ctx, "the capital of France")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.calls.Load(), "identical text must trigger exactly one external call")
}

func TestGetOrCreate_NormalizesWhitespace(t *testing.T) {
	inner := &countingEmbedder{}
	c := newTestCache(t, inner)
	ctx := context.Background()

	_, err := c.GetOrCreate(ctx, "hello   world")
	require.NoError(t, err)
	_, err = c.GetOrCreate(ctx, "  hello\nworld ")
	require.NoError(t, err)

	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestGetOrCreate_DiskTierSurvivesMemoryEviction(t *testing.T) {
	inner := &countingEmbedder{}
	dir := t.TempDir()
	c, err := NewTieredCache(inner, TieredCacheConfig{Dir: dir, MemoryEntries: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	_, err = c.GetOrCreate(ctx, "first")
	require.NoError(t, err)

	// Evict "first" from the memory tier.
	_, err = c.GetOrCreate(ctx, "second")
	require.NoError(t, err)
	_, err = c.GetOrCreate(ctx, "third")
	require.NoError(t, err)

	calls := inner.calls.Load()
	_, err = c.GetOrCreate(ctx, "first")
	require.NoError(t, err)

	assert.Equal(t, calls, inner.calls.Load(), "disk tier should serve the evicted entry")
	assert.GreaterOrEqual(t, c.Stats().DiskHits, uint64(1))
}

func TestGetOrCreate_EmbedFailureNotCached(t *testing.T) {
	inner := &countingEmbedder{fail: true}
	c := newTestCache(t, inner)
	ctx := context.Background()

	_, err := c.GetOrCreate(ctx, "some text")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrCodeEmbeddingFailed, pkgerrors.CodeOf(err))

	inner.fail = false
	vec, err := c.GetOrCreate(ctx, "some text")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestClear_DropsBothTiers(t *testing.T) {
	inner := &countingEmbedder{}
	c := newTestCache(t, inner)
	ctx := context.Background()

	_, err := c.GetOrCreate(ctx, "cached text")
	require.NoError(t, err)
	require.NoError(t, c.Clear(ctx))

	_, err = c.GetOrCreate(ctx, "cached text")
	require.NoError(t, err)
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestCleanupDisk_EnforcesAgeAndCount(t *testing.T) {
	inner := &countingEmbedder{}
	c, err := NewTieredCache(inner, TieredCacheConfig{
		Dir:            t.TempDir(),
		MemoryEntries:  1,
		DiskMaxEntries: 2,
		DiskMaxAge:     time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := c.GetOrCreate(ctx, text)
		require.NoError(t, err)
	}

	// Age out one entry artificially.
	stale := time.Now().Add(-2 * time.Hour).Unix()
	_, err = c.db.ExecContext(ctx,
		"UPDATE embedding_cache SET accessed_at = ? WHERE key = ?", stale, c.cacheKey("one"))
	require.NoError(t, err)

	require.NoError(t, c.CleanupDisk(ctx))

	var count int
	require.NoError(t, c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM embedding_cache").Scan(&count))
	assert.LessOrEqual(t, count, 2)

	var remains int
	require.NoError(t, c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM embedding_cache WHERE key = ?", c.cacheKey("one")).Scan(&remains))
	assert.Zero(t, remains, "aged-out entry should be gone")
}

func TestStats_TracksHitRate(t *testing.T) {
	inner := &countingEmbedder{}
	c := newTestCache(t, inner)
	ctx := context.Background()

	_, _ = c.GetOrCreate(ctx, "a")
	_, _ = c.GetOrCreate(ctx, "a")
	_, _ = c.GetOrCreate(ctx, "b")

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.001)
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, stats.DiskEntries)
}

func TestVectorCodec_RoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 3.75, 0}
	decoded, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.Error(t, err)
}
