package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration signals an invalid ranking profile or engine setup. Fatal at startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrProfileNotFound signals an unknown ranking profile name.
	ErrProfileNotFound = fmt.Errorf("profile not found: %w", ErrConfiguration)
	// ErrUndeclaredInput signals a ranking expression reading a query input the profile does not declare.
	ErrUndeclaredInput = fmt.Errorf("undeclared query input: %w", ErrConfiguration)

	// ErrEmbeddingUnavailable signals that the embedding provider could not produce a vector.
	// Recoverable: the caller may retry.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrEmptyQuery signals a blank query text.
	ErrEmptyQuery = errors.New("empty query")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidDocument signals a document that failed validation.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrIngestionItemFailed signals a single failed item of an ingestion batch.
	ErrIngestionItemFailed = errors.New("ingestion item failed")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
)

// Cause is the machine readable reason attached to a failed ingestion item.
type Cause string

// Ingestion failure causes.
const (
	CauseInvalidDocument      Cause = "invalid_document"
	CauseEmbeddingUnavailable Cause = "embedding_unavailable"
	CauseStorageFailed        Cause = "storage_failed"
	CauseNotFound             Cause = "not_found"
	CauseCanceled             Cause = "canceled"
)

// IngestionItemError wraps ErrIngestionItemFailed with the offending id and cause.
type IngestionItemError struct {
	ID    string
	Cause Cause
	Err   error
}

func (e *IngestionItemError) Error() string {
	return fmt.Sprintf("%s: id %q: %s: %v", ErrIngestionItemFailed.Error(), e.ID, e.Cause, e.Err)
}

// Unwrap exposes both the sentinel and the underlying error to errors.Is.
func (e *IngestionItemError) Unwrap() []error { return []error{ErrIngestionItemFailed, e.Err} }

// NewIngestionItemError classifies err and wraps it for the item id.
func NewIngestionItemError(id string, err error) error {
	return &IngestionItemError{ID: id, Cause: CauseOf(err), Err: err}
}

// CauseOf maps an error onto the ingestion cause taxonomy.
// Anything unrecognised is treated as a storage failure.
func CauseOf(err error) Cause {
	var itemErr *IngestionItemError
	switch {
	case errors.As(err, &itemErr):
		return itemErr.Cause
	case errors.Is(err, ErrInvalidDocument):
		return CauseInvalidDocument
	case errors.Is(err, ErrEmbeddingUnavailable), errors.Is(err, ErrVectorDimMismatch):
		return CauseEmbeddingUnavailable
	case errors.Is(err, ErrDocumentNotFound):
		return CauseNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CauseCanceled
	default:
		return CauseStorageFailed
	}
}
