package repositories

import "errors"

// Domain-specific repository errors
var (
	// ErrLinkNotFound is returned when a platform link cannot be found
	ErrLinkNotFound = errors.New("platform link not found")

	// ErrMetadataNotFound is returned when a metadata row cannot be found
	ErrMetadataNotFound = errors.New("platform metadata not found")

	// ErrSessionNotFound is returned when a stored session cannot be found or has expired
	ErrSessionNotFound = errors.New("session not found")
)
