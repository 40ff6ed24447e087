package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Sync cycle errors
	ErrRemoteUnavailable   = fmt.Errorf("remote playlist unavailable")
	ErrStorage             = fmt.Errorf("storage error")
	ErrFetch               = fmt.Errorf("fetch failed")
	ErrReconcileInProgress = fmt.Errorf("reconciliation already in progress")
	ErrTimeout             = fmt.Errorf("operation timed out")

	// Store errors
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrUserNotFound     = fmt.Errorf("user not found")
	ErrJobNotFound      = fmt.Errorf("job not found")
	ErrAlreadyExists    = fmt.Errorf("already exists")

	// Input validation errors
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrInvalidPlaylistURL = fmt.Errorf("invalid playlist URL")
	ErrMissingArgument    = fmt.Errorf("missing required argument")
	ErrInvalidArgument    = fmt.Errorf("invalid argument")
)

// IsRetryable reports whether a failed reconcile attempt should be repeated.
//
// Storage and fetch failures are transient; everything else (rejections, missing
// playlists, caller cancellation) is terminal for the cycle.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrStorage) || errors.Is(err, ErrFetch)
}
