// Package errors provides structured error handling for the retrieval pipeline.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage and cache I/O errors
//   - 3XX: External service errors
//   - 4XX: Validation errors
//   - 5XX: Pipeline errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates chunk store and cache I/O errors.
	CategoryStorage Category = "STORAGE"
	// CategoryService indicates external service (embedding, completion) errors.
	CategoryService Category = "SERVICE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryPipeline indicates indexing/query pipeline errors.
	CategoryPipeline Category = "PIPELINE"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates the session cannot continue.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeCacheIO      = "ERR_201_CACHE_IO"
	ErrCodeCorruptIndex = "ERR_205_CORRUPT_INDEX"

	// Service errors (300-399)
	ErrCodeServiceUnavailable = "ERR_301_SERVICE_UNAVAILABLE"
	ErrCodeServiceTimeout     = "ERR_302_SERVICE_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_404_QUERY_EMPTY"

	// Pipeline errors (500-599)
	ErrCodeEmbeddingFailed = "ERR_501_EMBEDDING_FAILED"
	ErrCodePersistFailed   = "ERR_502_PERSIST_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryPipeline
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryService
	case '4':
		return CategoryValidation
	default:
		return CategoryPipeline
	}
}

// severityFromCode derives the default severity for a code.
// Whole-session failures are fatal; service hiccups are warnings because the
// pipeline degrades instead of aborting.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeEmbeddingFailed, ErrCodePersistFailed, ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeServiceUnavailable, ErrCodeServiceTimeout:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code may be retried.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeServiceUnavailable, ErrCodeServiceTimeout:
		return true
	default:
		return false
	}
}
