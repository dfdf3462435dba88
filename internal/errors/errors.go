// Package errors provides structured error handling for Quarry.
//
// Every failure surfaced by the retrieval engine carries a Kind so that
// callers (the mutation coordinator, the query engine, the HTTP transport)
// can decide between retrying, degrading, and aborting without string
// matching on messages.
package errors

import (
	"fmt"
)

// Kind classifies an error for propagation policy decisions.
type Kind string

const (
	// KindValidation indicates bad caller input (unsupported strategy,
	// overlap >= chunk_size, unsupported document type). Never retried.
	KindValidation Kind = "VALIDATION"

	// KindTransientBackend indicates a network/timeout/5xx-class failure
	// from an index backend. Safe to retry with backoff.
	KindTransientBackend Kind = "TRANSIENT_BACKEND"

	// KindStorage indicates a backend write that failed after the retry
	// budget was exhausted, or a non-transient backend failure.
	KindStorage Kind = "STORAGE"

	// KindCollectionMissing indicates the backing collection does not
	// exist yet. Handled transparently by lazy creation.
	KindCollectionMissing Kind = "COLLECTION_MISSING"

	// KindEmbeddingProvider indicates the embedding provider failed.
	// Fatal for ingest, degrades to empty results for query.
	KindEmbeddingProvider Kind = "EMBEDDING_PROVIDER"

	// KindTimeout indicates the caller-side deadline expired.
	KindTimeout Kind = "TIMEOUT"

	// KindNotFound indicates a missing document or collection on a read
	// or delete path. Deletion of absent data is a no-op success.
	KindNotFound Kind = "NOT_FOUND"

	// KindInternal indicates an unexpected internal failure.
	KindInternal Kind = "INTERNAL"
)

// QuarryError is the structured error type for the retrieval engine.
type QuarryError struct {
	// Kind is the error classification driving retry/degrade decisions.
	Kind Kind

	// Message is the human-readable error message.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *QuarryError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *QuarryError) Unwrap() error {
	return e.Cause
}

// Is matches errors by Kind so errors.Is works across wrapped chains.
func (e *QuarryError) Is(target error) bool {
	if t, ok := target.(*QuarryError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *QuarryError) WithDetail(key, value string) *QuarryError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a QuarryError with the given kind and message.
// The retryable flag is derived from the kind.
func New(kind Kind, message string, cause error) *QuarryError {
	return &QuarryError{
		Kind:      kind,
		Message:   message,
		Cause:     cause,
		Retryable: kind == KindTransientBackend,
	}
}

// Wrap creates a QuarryError from an existing error, keeping its message.
// Returns nil if err is nil.
func Wrap(kind Kind, err error) *QuarryError {
	if err == nil {
		return nil
	}
	return New(kind, err.Error(), err)
}

// Validation creates a caller-input error. Fatal, never retried.
func Validation(message string, cause error) *QuarryError {
	return New(KindValidation, message, cause)
}

// TransientBackend creates a retryable backend error.
func TransientBackend(message string, cause error) *QuarryError {
	return New(KindTransientBackend, message, cause)
}

// Storage creates a non-retryable backend write error.
func Storage(message string, cause error) *QuarryError {
	return New(KindStorage, message, cause)
}

// CollectionMissing creates a missing-collection error.
func CollectionMissing(message string, cause error) *QuarryError {
	return New(KindCollectionMissing, message, cause)
}

// EmbeddingProvider creates an embedding-provider error.
func EmbeddingProvider(message string, cause error) *QuarryError {
	return New(KindEmbeddingProvider, message, cause)
}

// Timeout creates a deadline-exceeded error.
func Timeout(message string, cause error) *QuarryError {
	return New(KindTimeout, message, cause)
}

// NotFound creates a missing-resource error.
func NotFound(message string, cause error) *QuarryError {
	return New(KindNotFound, message, cause)
}

// Internal creates an unexpected internal error.
func Internal(message string, cause error) *QuarryError {
	return New(KindInternal, message, cause)
}

// IsRetryable reports whether an error may be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if qe, ok := err.(*QuarryError); ok {
		return qe.Retryable
	}
	return false
}

// GetKind extracts the Kind from an error chain.
// Returns KindInternal for non-QuarryError values.
func GetKind(err error) Kind {
	for err != nil {
		if qe, ok := err.(*QuarryError); ok {
			return qe.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return KindInternal
}

// HasKind reports whether any error in the chain has the given kind.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		if qe, ok := err.(*QuarryError); ok && qe.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
