package domain

import "errors"

var (
	// ErrNetwork covers transport, DNS, timeout and non-2xx failures talking to an upstream service.
	ErrNetwork = errors.New("network error")
	// ErrMalformedPayload is returned when a required field is absent or has the wrong type.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrEmptyPool indicates the hotspot has no species to quiz on.
	ErrEmptyPool = errors.New("hotspot has no species")
	// ErrIdentityMismatch is returned when a detail response names a different species than requested.
	ErrIdentityMismatch = errors.New("species identity mismatch")
	// ErrRetriesExhausted wraps the last failure once the retry budget is spent.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrSessionNotFound is returned when a quiz session does not exist or was discarded.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrHotspotRequired is returned when a session is started without a hotspot.
	ErrHotspotRequired = errors.New("hotspot is required")
	// ErrInvalidTransition is returned when an event does not apply to the session's current state.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrQuestionNotReady is returned when an answer arrives before the question media resolved.
	ErrQuestionNotReady = errors.New("question not ready")
	// ErrStaleFetch marks a detail fetch that resolved after the session moved on.
	ErrStaleFetch = errors.New("stale detail fetch")
	// ErrDescriptionUnavailable indicates the encyclopedia has nothing for a species.
	ErrDescriptionUnavailable = errors.New("description unavailable")
)
