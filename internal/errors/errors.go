package errors

import (
	stderrors "errors"
	"fmt"
)

// PipelineError is the structured error type for the retrieval pipeline.
// It carries the context needed at each recovery point: which stage failed,
// whether the failure is transient, and the underlying cause.
type PipelineError struct {
	// Code is the unique error code (e.g., "ERR_501_EMBEDDING_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Service, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with PipelineError.
func (e *PipelineError) Is(target error) bool {
	if t, ok := target.(*PipelineError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *PipelineError) WithDetail(key, value string) *PipelineError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new PipelineError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *PipelineError {
	return &PipelineError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a PipelineError from an existing error.
// The error's message becomes the PipelineError message.
func Wrap(code string, err error) *PipelineError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel errors for the closed taxonomy. Recovery points match on these
// with errors.Is rather than inspecting strings.
var (
	// ErrEmbeddingFailed means no embeddings could be produced for an entire
	// document. Fatal to that indexing session.
	ErrEmbeddingFailed = New(ErrCodeEmbeddingFailed, "no embeddings could be produced for document", nil)

	// ErrPersistFailed means the chunk store rejected the write. Fatal, and no
	// partial chunk set is left visible.
	ErrPersistFailed = New(ErrCodePersistFailed, "chunk store rejected write", nil)

	// ErrTransientService marks a single failed external call (translation,
	// expansion, rerank). Callers degrade to the next-best behavior.
	ErrTransientService = New(ErrCodeServiceUnavailable, "external service call failed", nil)
)

// EmbeddingFailed wraps a cause as a fatal whole-document embedding failure.
func EmbeddingFailed(cause error) *PipelineError {
	return New(ErrCodeEmbeddingFailed, "no embeddings could be produced for document", cause)
}

// PersistFailed wraps a cause as a fatal store write failure.
func PersistFailed(cause error) *PipelineError {
	return New(ErrCodePersistFailed, "chunk store rejected write", cause)
}

// TransientService wraps a cause as a recoverable external-service failure.
func TransientService(stage string, cause error) *PipelineError {
	return New(ErrCodeServiceUnavailable, "external service call failed", cause).
		WithDetail("stage", stage)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a PipelineError with Retryable flag set.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// CodeOf returns the code of a PipelineError in the chain, or empty string.
func CodeOf(err error) string {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
