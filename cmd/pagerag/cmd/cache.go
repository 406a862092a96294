package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/doclens/pagerag/internal/config"
	"github.com/doclens/pagerag/internal/embed"
	"github.com/doclens/pagerag/internal/output"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the embedding cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show embedding cache statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheStats()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Prune stale disk cache entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheCleanup(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop all cached embeddings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCacheClear(cmd.Context())
		},
	})

	return cmd
}

// maintenanceEmbedder backs cache maintenance commands, which read and prune
// cache entries but never embed. Keying still needs the configured model
// name so maintenance sees the same entries as indexing.
type maintenanceEmbedder struct {
	model string
}

func (e maintenanceEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedding not available during cache maintenance")
}

func (e maintenanceEmbedder) Dimensions() int   { return 0 }
func (e maintenanceEmbedder) ModelName() string { return e.model }
func (e maintenanceEmbedder) Close() error      { return nil }

func openMaintenanceCache() (*embed.TieredCache, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return openCache(cfg, maintenanceEmbedder{model: cfg.Embeddings.Model})
}

func runCacheStats() error {
	cache, err := openMaintenanceCache()
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	stats := cache.Stats()
	w := output.New(os.Stdout)
	w.Header("Embedding cache")
	w.Statusf("disk entries:  %d", stats.DiskEntries)
	w.Statusf("memory tier:   %d / %d", stats.Size, stats.Capacity)
	return nil
}

func runCacheCleanup(ctx context.Context) error {
	cache, err := openMaintenanceCache()
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	before := cache.Stats().DiskEntries
	if err := cache.CleanupDisk(ctx); err != nil {
		return err
	}
	after := cache.Stats().DiskEntries

	w := output.New(os.Stdout)
	w.Successf("cleanup removed %d entries (%d remain)", before-after, after)
	return nil
}

func runCacheClear(ctx context.Context) error {
	cache, err := openMaintenanceCache()
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	if err := cache.Clear(ctx); err != nil {
		return err
	}

	w := output.New(os.Stdout)
	w.Success("embedding cache cleared")
	return nil
}
