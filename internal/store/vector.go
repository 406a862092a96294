package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// VectorIndexConfig configures the HNSW graph.
type VectorIndexConfig struct {
	Dimensions int
	// M is the maximum number of graph neighbors per node.
	M int
	// EfSearch controls search-time candidate list size.
	EfSearch int
}

// VectorIndex is an in-memory HNSW graph with gob persistence. Chunk IDs are
// strings; the graph keys are uint64, so the index keeps a bidirectional
// mapping. Deletion is lazy: removed IDs are dropped from the mapping and the
// orphaned graph node is skipped in results.
type VectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorIndexConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	fileOf  map[string]string
	nextKey uint64

	closed bool
}

// vectorMetadata is the persisted ID mapping.
type vectorMetadata struct {
	IDMap   map[string]uint64
	FileOf  map[string]string
	NextKey uint64
	Config  VectorIndexConfig
}

// NewVectorIndex creates an empty HNSW vector index.
func NewVectorIndex(cfg VectorIndexConfig) *VectorIndex {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorIndex{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		fileOf: make(map[string]string),
	}
}

// Add inserts vectors tagged with their file. Existing IDs are replaced via
// lazy deletion.
func (v *VectorIndex) Add(ctx context.Context, fileID string, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, vec := range vectors {
		if len(vec) != v.config.Dimensions {
			return ErrDimensionMismatch{Expected: v.config.Dimensions, Got: len(vec)}
		}
	}

	for i, id := range ids {
		// Lazy replacement: orphan the old graph node instead of deleting,
		// which avoids graph breakage when removing the last node.
		if existingKey, exists := v.idMap[id]; exists {
			delete(v.keyMap, existingKey)
			delete(v.idMap, id)
		}

		key := v.nextKey
		v.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		v.graph.Add(hnsw.MakeNode(key, vec))
		v.idMap[id] = key
		v.keyMap[key] = id
		v.fileOf[id] = fileID
	}
	return nil
}

// Search finds up to k chunks nearest to the query vector. A non-empty fileID
// restricts results to that file; hits below threshold are dropped.
func (v *VectorIndex) Search(ctx context.Context, query []float32, fileID string, k int, threshold float64) ([]VectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != v.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: v.config.Dimensions, Got: len(query)}
	}
	if v.graph.Len() == 0 {
		return []VectorHit{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	// Over-fetch to compensate for lazily deleted nodes still in the graph
	// and for candidates the file filter will reject.
	fetch := k*4 + len(v.keyMap)/4 + 16
	if fetch > v.graph.Len() {
		fetch = v.graph.Len()
	}
	nodes := v.graph.Search(normalized, fetch)

	hits := make([]VectorHit, 0, k)
	for _, node := range nodes {
		id, exists := v.keyMap[node.Key]
		if !exists {
			continue
		}
		if fileID != "" && v.fileOf[id] != fileID {
			continue
		}
		// Cosine distance is 1 - similarity, so this recovers the raw
		// similarity the threshold is defined against.
		distance := v.graph.Distance(normalized, node.Value)
		score := float64(1.0 - distance)
		if threshold > 0 && score < threshold {
			continue
		}
		hits = append(hits, VectorHit{ChunkID: id, Score: score})
		if len(hits) == k {
			break
		}
	}
	return hits, nil
}

// Delete removes vectors by chunk ID (lazy).
func (v *VectorIndex) Delete(ctx context.Context, ids []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, id := range ids {
		if key, exists := v.idMap[id]; exists {
			delete(v.keyMap, key)
			delete(v.idMap, id)
			delete(v.fileOf, id)
		}
	}
	return nil
}

// Count returns the number of live vectors.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return 0
	}
	return len(v.idMap)
}

// Save persists the graph and ID mapping to disk atomically.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vector index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create vector index file: %w", err)
	}
	if err := v.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close vector index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename vector index file: %w", err)
	}

	return v.saveMetadata(path + ".meta")
}

func (v *VectorIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := vectorMetadata{IDMap: v.idMap, FileOf: v.fileOf, NextKey: v.nextKey, Config: v.config}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode vector metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and ID mapping from disk. Missing files leave the
// index empty, which is the fresh-start case.
func (v *VectorIndex) Load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	metaFile, err := os.Open(path + ".meta")
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open vector metadata: %w", err)
	}
	defer metaFile.Close()

	var meta vectorMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode vector metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vector index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	v.idMap = meta.IDMap
	v.fileOf = meta.FileOf
	if v.fileOf == nil {
		v.fileOf = make(map[string]string)
	}
	v.nextKey = meta.NextKey
	v.config = meta.Config
	v.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		v.keyMap[key] = id
	}
	return nil
}

// Close releases the graph.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	v.graph = nil
	return nil
}

// normalizeVectorInPlace scales a vector to unit length.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
