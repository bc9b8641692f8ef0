package domain

import (
	"errors"
	"fmt"
)

// Sentinel strings returned instead of errors when nothing matched.
const (
	NoRelevantInformation = "No relevant information found."
	FallbackContext       = "No specific documents found. Use your general knowledge."
)

var (
	// ErrConfiguration marks a required index or setting that is missing or unreadable.
	ErrConfiguration = errors.New("studyrag: configuration error")

	// ErrDimensionMismatch marks an embedding whose length differs from the store's.
	ErrDimensionMismatch = errors.New("studyrag: dimension mismatch")

	// ErrInvalidEmbedding marks an empty or non-finite embedding.
	ErrInvalidEmbedding = errors.New("studyrag: invalid embedding")

	// ErrInvalidTopK marks a negative result count.
	ErrInvalidTopK = errors.New("studyrag: invalid top_k")

	// ErrStoreMerged marks an attempt to merge a store into itself.
	ErrStoreMerged = errors.New("studyrag: store cannot be merged into itself")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("studyrag: record not found")
)

// SourceError reports a single retrieval source that failed during aggregation.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("retrieval source %q failed: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// DimensionError builds an ErrDimensionMismatch with the offending sizes.
func DimensionError(want, got int) error {
	return fmt.Errorf("%w: store has %d, got %d", ErrDimensionMismatch, want, got)
}
