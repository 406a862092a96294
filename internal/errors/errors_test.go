package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesClassificationFromCode(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		severity  Severity
		retryable bool
	}{
		{ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
		{ErrCodeCacheIO, CategoryStorage, SeverityError, false},
		{ErrCodeCorruptIndex, CategoryStorage, SeverityFatal, false},
		{ErrCodeServiceUnavailable, CategoryService, SeverityWarning, true},
		{ErrCodeServiceTimeout, CategoryService, SeverityWarning, true},
		{ErrCodeQueryEmpty, CategoryValidation, SeverityError, false},
		{ErrCodeEmbeddingFailed, CategoryPipeline, SeverityFatal, false},
		{ErrCodePersistFailed, CategoryPipeline, SeverityFatal, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "boom", nil)

			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestWrap_PreservesChain(t *testing.T) {
	cause := stderrors.New("disk full")

	err := Wrap(ErrCodeCacheIO, cause)

	require.NotNil(t, err)
	assert.Equal(t, ErrCodeCacheIO, err.Code)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[ERR_201_CACHE_IO] disk full", err.Error())
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeCacheIO, nil))
}

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("indexing: %w", EmbeddingFailed(stderrors.New("offline")))

	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.NotErrorIs(t, err, ErrPersistFailed)
}

func TestWithDetail(t *testing.T) {
	err := TransientService("translate", stderrors.New("429")).
		WithDetail("file_id", "doc1")

	assert.Equal(t, "translate", err.Details["stage"])
	assert.Equal(t, "doc1", err.Details["file_id"])
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", PersistFailed(stderrors.New("locked")))

	assert.Equal(t, ErrCodePersistFailed, CodeOf(wrapped))
	assert.Empty(t, CodeOf(stderrors.New("plain")))
	assert.Empty(t, CodeOf(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(TransientService("rerank", stderrors.New("timeout"))))
	assert.False(t, IsRetryable(PersistFailed(stderrors.New("locked"))))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}
