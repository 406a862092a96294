// Package config loads and validates pagerag configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pagerag configuration.
type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PathsConfig configures where index data lives.
type PathsConfig struct {
	// DataDir holds the chunk store and disk cache (default: ~/.pagerag).
	DataDir string `yaml:"data_dir"`
}

// ChunkingConfig configures document splitting.
type ChunkingConfig struct {
	// TargetSize is the target chunk size in characters.
	TargetSize int `yaml:"target_size"`
	// Overlap is the number of characters carried over between consecutive chunks.
	Overlap int `yaml:"overlap"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
	// RateDelay is the pause between successive embedding calls during indexing.
	RateDelay time.Duration `yaml:"rate_delay"`
}

// RetrievalConfig configures hybrid search and context assembly.
type RetrievalConfig struct {
	// TopK is the number of candidates kept after hybrid merge.
	TopK int `yaml:"top_k"`
	// SimilarityThreshold filters vector hits below this cosine similarity.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// FinalChunks is the number of chunks the reranker narrows down to.
	FinalChunks int `yaml:"final_chunks"`
	// CompletionModel is the model used for translation, expansion and rerank scoring.
	CompletionModel string `yaml:"completion_model"`
	// DefaultTokenBudget caps assembled context size for ordinary questions.
	DefaultTokenBudget int `yaml:"default_token_budget"`
}

// CacheConfig configures the two-tier embedding cache.
type CacheConfig struct {
	// MemoryEntries bounds the LRU memory tier.
	MemoryEntries int `yaml:"memory_entries"`
	// DiskMaxEntries bounds the disk tier after cleanup.
	DiskMaxEntries int `yaml:"disk_max_entries"`
	// DiskMaxAge evicts disk entries not touched for this long during cleanup.
	DiskMaxAge time.Duration `yaml:"disk_max_age"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the default configuration.
func Default() Config {
	dataDir := filepath.Join(os.TempDir(), ".pagerag")
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".pagerag")
	}
	return Config{
		Paths: PathsConfig{DataDir: dataDir},
		Chunking: ChunkingConfig{
			TargetSize: 1000,
			Overlap:    200,
		},
		Embeddings: EmbeddingsConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 768,
			APIKeyEnv:  "OPENAI_API_KEY",
			RateDelay:  100 * time.Millisecond,
		},
		Retrieval: RetrievalConfig{
			TopK:                10,
			SimilarityThreshold: 0.25,
			FinalChunks:         5,
			CompletionModel:     "gpt-4o-mini",
			DefaultTokenBudget:  1200,
		},
		Cache: CacheConfig{
			MemoryEntries:  1000,
			DiskMaxEntries: 50000,
			DiskMaxAge:     30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from path, layering it over defaults.
// A missing file is not an error; defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c Config) Validate() error {
	if c.Chunking.TargetSize <= 0 {
		return fmt.Errorf("chunking.target_size must be positive, got %d", c.Chunking.TargetSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.TargetSize {
		return fmt.Errorf("chunking.overlap must be in [0, target_size), got %d", c.Chunking.Overlap)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be in [0, 1], got %f", c.Retrieval.SimilarityThreshold)
	}
	if c.Cache.MemoryEntries <= 0 {
		return fmt.Errorf("cache.memory_entries must be positive, got %d", c.Cache.MemoryEntries)
	}
	return nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pagerag.yaml"
	}
	return filepath.Join(home, ".pagerag", "pagerag.yaml")
}
