package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/doclens/pagerag/internal/config"
	"github.com/doclens/pagerag/internal/embed"
	"github.com/doclens/pagerag/internal/llm"
	"github.com/doclens/pagerag/internal/pipeline"
	"github.com/doclens/pagerag/internal/store"
)

// app bundles the wired pipeline and its owned resources for one command
// invocation. Everything is constructed explicitly from configuration; the
// only ambient input is the API key environment variable.
type app struct {
	cfg      config.Config
	pipeline *pipeline.Pipeline
	store    *store.LocalStore
	cache    *embed.TieredCache
	llm      llm.CompletionClient
}

// newApp builds the full pipeline. It requires the embedding API key, so
// commands that never call external services open their backends directly
// instead.
func newApp() (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	apiKey := os.Getenv(cfg.Embeddings.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s is not set", cfg.Embeddings.APIKeyEnv)
	}

	embedder, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
		APIKey:     apiKey,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
	})
	if err != nil {
		return nil, err
	}

	cache, err := openCache(cfg, embed.NewRetryEmbedder(embedder, embed.DefaultMaxRetries))
	if err != nil {
		return nil, err
	}

	st, err := openStore(cfg)
	if err != nil {
		_ = cache.Close()
		return nil, err
	}

	client, err := llm.NewOpenAIClient(llm.OpenAIClientConfig{
		APIKey: apiKey,
		Model:  cfg.Retrieval.CompletionModel,
	})
	if err != nil {
		_ = st.Close()
		_ = cache.Close()
		return nil, err
	}

	p := pipeline.New(st, cache, client, pipeline.Config{
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		FinalChunks:         cfg.Retrieval.FinalChunks,
		TokenBudget:         cfg.Retrieval.DefaultTokenBudget,
		RateDelay:           cfg.Embeddings.RateDelay,
		ChunkTargetSize:     cfg.Chunking.TargetSize,
		ChunkOverlap:        cfg.Chunking.Overlap,
		Logger:              slog.Default(),
	})

	return &app{cfg: cfg, pipeline: p, store: st, cache: cache, llm: client}, nil
}

// Close releases the app's resources in reverse construction order.
func (a *app) Close() {
	_ = a.llm.Close()
	_ = a.store.Close()
	_ = a.cache.Close()
}

func openStore(cfg config.Config) (*store.LocalStore, error) {
	return store.NewLocalStore(store.LocalStoreConfig{
		Dir:        filepath.Join(cfg.Paths.DataDir, "index"),
		Dimensions: cfg.Embeddings.Dimensions,
	})
}

func openCache(cfg config.Config, inner embed.Embedder) (*embed.TieredCache, error) {
	return embed.NewTieredCache(inner, embed.TieredCacheConfig{
		Dir:            filepath.Join(cfg.Paths.DataDir, "cache"),
		MemoryEntries:  cfg.Cache.MemoryEntries,
		DiskMaxEntries: cfg.Cache.DiskMaxEntries,
		DiskMaxAge:     cfg.Cache.DiskMaxAge,
	})
}
