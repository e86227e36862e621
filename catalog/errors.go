package catalog

import (
	"errors"
	"fmt"
)

// Sentinel errors for package catalog.
// These errors can be checked with errors.Is() for specific error handling.
var (
	// ErrNotFound means the requested record or aggregation is empty.
	// It is expected and recoverable.
	ErrNotFound = errors.New("not found")

	// ErrEmptyQueue is returned by dequeue and checkout when nothing is
	// eligible. It wraps ErrNotFound.
	ErrEmptyQueue = fmt.Errorf("empty queue: %w", ErrNotFound)

	// ErrConflict means a concurrent update won the race for a record,
	// even after the backend's bounded retries. Callers treat it as
	// transient.
	ErrConflict = errors.New("update conflict")

	// ErrBackendUnavailable means the catalog store could not be reached
	// or answered with a server error. It must be surfaced to the caller.
	ErrBackendUnavailable = errors.New("catalog backend unavailable")
)
