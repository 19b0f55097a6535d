package domain

import "errors"

var (
	// ErrVideoNotFound indicates the video descriptor could not be loaded.
	ErrVideoNotFound = errors.New("video not found")
	// ErrElementNotFound indicates a referenced element ID is invalid.
	ErrElementNotFound = errors.New("interactive element not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrSessionNotFound is returned when a playback session has not been mounted.
	ErrSessionNotFound = errors.New("playback session not found")
	// ErrSessionClosed is returned for calls arriving after teardown.
	ErrSessionClosed = errors.New("playback session closed")
	// ErrElementNotActive is returned when resolving an element outside its active state.
	ErrElementNotActive = errors.New("interactive element is not active")
	// ErrDuplicateAttempt is returned when resubmission is disallowed and an
	// attempt already exists for the (user, element) pair.
	ErrDuplicateAttempt = errors.New("attempt already recorded")
	// ErrNavigationTarget is returned when a branching action references an
	// unknown video or cannot be executed.
	ErrNavigationTarget = errors.New("invalid navigation target")
	// ErrAdapterUnavailable indicates the video source could not be normalized
	// into an embeddable form; the session cannot start.
	ErrAdapterUnavailable = errors.New("playback source unavailable")
	// ErrMalformedAction indicates an option action string failed to parse.
	ErrMalformedAction = errors.New("malformed navigation action")
)
