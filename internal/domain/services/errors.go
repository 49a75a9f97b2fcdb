package services

import (
	"errors"
)

var (
	// ErrLinkPersistence marks a failed write of the primary link row. It is
	// the only failure surfaced to the caller as a request error.
	ErrLinkPersistence = errors.New("failed to persist platform link")

	// ErrAnchorRejected means the anchor identity could not be authenticated:
	// the linked account no longer exists, or the contact identifier belongs
	// to an account with no link for this identity
	ErrAnchorRejected = errors.New("anchor identity rejected")

	// ErrAnchorUnlink is returned when asked to unlink the anchor platform
	ErrAnchorUnlink = errors.New("the anchor platform cannot be unlinked")
)

// IsLinkPersistence checks if the error is a primary link write failure
func IsLinkPersistence(err error) bool {
	return errors.Is(err, ErrLinkPersistence)
}
