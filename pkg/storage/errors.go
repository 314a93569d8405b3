package storage

import "errors"

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrNotReady is returned when a result is requested before the
	// session reached a terminal status.
	ErrNotReady = errors.New("session result not ready")

	// ErrTerminalSession is returned on attempts to advance a session
	// that is already DONE or FAILED.
	ErrTerminalSession = errors.New("session is in a terminal status")

	// ErrDuplicateTrace is returned when a (session, attempt) trace
	// row already exists.
	ErrDuplicateTrace = errors.New("planner trace already recorded for attempt")

	// ErrNoSessionsAvailable indicates no queued sessions to claim.
	ErrNoSessionsAvailable = errors.New("no sessions available")
)
