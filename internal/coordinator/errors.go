package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the id is absent from the metadata store.
	ErrNotFound = errors.New("memory not found")

	// ErrValidation rejects malformed content, scope, or tags before any
	// store is touched.
	ErrValidation = errors.New("validation failed")

	// ErrEmbeddingUnavailable means the embedding provider failed or timed
	// out. Store degrades the record to metadata_only instead of failing.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrStoreUnavailable means the metadata store itself is unreachable.
	// Always propagated; there is no degraded mode without it.
	ErrStoreUnavailable = errors.New("metadata store unavailable")
)

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
