package util

import "errors"

// Sentinel errors for package util.
// These errors can be checked with errors.Is() for specific error handling.
var (
	// Blob id errors
	ErrShortID   = errors.New("id is too short to shard")
	ErrInvalidID = errors.New("id contains path separators")
)
