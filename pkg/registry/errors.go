package registry

import "errors"

// Sentinel errors for registry operations. These enable reliable error
// checking with errors.Is()
var (
	// ErrDuplicateID indicates a watcher with the same identifier exists
	ErrDuplicateID = errors.New("watcher id already exists")

	// ErrNotFound indicates no watcher with the given identifier exists
	ErrNotFound = errors.New("watcher not found")

	// ErrCapacityExceeded indicates the configured maximum watcher count
	// has been reached; remove unused watchers before retrying
	ErrCapacityExceeded = errors.New("maximum watcher count reached")

	// ErrInvalidConfig indicates a watcher configuration that can never
	// be registered (empty id or root path, malformed patterns)
	ErrInvalidConfig = errors.New("invalid watcher configuration")
)
