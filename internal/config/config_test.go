package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesLayerOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagerag.yaml")
	content := `
chunking:
  target_size: 500
  overlap: 50
retrieval:
  top_k: 20
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Chunking.TargetSize)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, 20, cfg.Retrieval.TopK)
	// Untouched sections keep their defaults.
	assert.Equal(t, Default().Embeddings.Model, cfg.Embeddings.Model)
	assert.Equal(t, Default().Cache.MemoryEntries, cfg.Cache.MemoryEntries)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagerag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: ["), 0o644))

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagerag.yaml")
	content := `
chunking:
  target_size: 100
  overlap: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(*Config) {}},
		{name: "zero target size", mutate: func(c *Config) { c.Chunking.TargetSize = 0 }, wantErr: true},
		{name: "negative overlap", mutate: func(c *Config) { c.Chunking.Overlap = -1 }, wantErr: true},
		{name: "zero dimensions", mutate: func(c *Config) { c.Embeddings.Dimensions = 0 }, wantErr: true},
		{name: "zero top_k", mutate: func(c *Config) { c.Retrieval.TopK = 0 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.Retrieval.SimilarityThreshold = 1.5 }, wantErr: true},
		{name: "zero memory entries", mutate: func(c *Config) { c.Cache.MemoryEntries = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotEmpty(t, cfg.Paths.DataDir)
	assert.Equal(t, 30*24*time.Hour, cfg.Cache.DiskMaxAge)
	assert.NoError(t, cfg.Validate())
}
