// Package embed generates and caches vector embeddings for document text.
package embed

import (
	"context"
	"time"
)

// Common embedding constants.
const (
	// DefaultDimensions is the embedding dimension used when none is configured.
	DefaultDimensions = 768

	// DefaultTimeout is the timeout for a single embedding request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for a
	// transient embedding failure.
	DefaultMaxRetries = 3
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Close releases resources.
	Close() error
}
