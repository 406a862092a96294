package embed

import (
	"context"
	"time"

	pkgerrors "github.com/doclens/pagerag/internal/errors"
)

// RetryEmbedder wraps an Embedder with exponential-backoff retries so a
// transient service hiccup does not fail a whole chunk.
type RetryEmbedder struct {
	inner Embedder
	cfg   pkgerrors.RetryConfig
}

// Verify interface implementation at compile time.
var _ Embedder = (*RetryEmbedder)(nil)

// NewRetryEmbedder wraps inner with retry behavior.
// maxRetries <= 0 uses DefaultMaxRetries.
func NewRetryEmbedder(inner Embedder, maxRetries int) *RetryEmbedder {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	cfg := pkgerrors.DefaultRetryConfig()
	cfg.MaxRetries = maxRetries
	cfg.InitialDelay = 500 * time.Millisecond
	return &RetryEmbedder{inner: inner, cfg: cfg}
}

// Embed retries the inner embedder on failure with exponential backoff.
func (r *RetryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return pkgerrors.RetryWithResult(ctx, r.cfg, func() ([]float32, error) {
		return r.inner.Embed(ctx, text)
	})
}

// Dimensions returns the embedding dimension (passthrough to inner).
func (r *RetryEmbedder) Dimensions() int { return r.inner.Dimensions() }

// ModelName returns the model identifier (passthrough to inner).
func (r *RetryEmbedder) ModelName() string { return r.inner.ModelName() }

// Close releases resources and closes the inner embedder.
func (r *RetryEmbedder) Close() error { return r.inner.Close() }
