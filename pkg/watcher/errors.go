package watcher

import "errors"

// Sentinel errors for engine operations. These enable reliable error
// checking with errors.Is()
var (
	// ErrPathNotFound indicates the watch root does not exist
	ErrPathNotFound = errors.New("watch path does not exist")

	// ErrPermission indicates the watch root is not readable
	ErrPermission = errors.New("watch path is not readable")

	// ErrEngineFailed indicates the engine hit an unrecoverable watch
	// failure and only accepts removal
	ErrEngineFailed = errors.New("watcher engine is in error state")
)
